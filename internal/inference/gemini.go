package inference

// Wire types for the generateContent REST call.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   *Schema `json:"responseSchema"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type responsePart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Schema is the provider's OpenAPI subset for structured output.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ResultSchema describes Result to the provider.
func ResultSchema() *Schema {
	return &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"bloodGroup": {
				Type:        "STRING",
				Description: "The predicted blood group (e.g., A+, A-, B+, B-, O+, O-, AB+, AB-).",
			},
			"confidence": {
				Type:        "INTEGER",
				Description: "Confidence percentage (0-100) based on ridge clarity and pattern distinctiveness.",
			},
			"patternType": {
				Type:        "STRING",
				Description: "Precise dermatoglyphic pattern (e.g., Ulnar Loop, Radial Loop, Plain Whorl, Double Loop Whorl, Plain Arch, Tented Arch).",
			},
			"reasoning": {
				Type:        "STRING",
				Description: "Detailed technical analysis of ridge count, delta points, and core location leading to the conclusion.",
			},
			"personalityTraits": {
				Type:        "ARRAY",
				Items:       &Schema{Type: "STRING"},
				Description: "3 professional personality descriptors associated with this blood type.",
			},
			"rarity": {
				Type:        "STRING",
				Description: "Statistical rarity of this specific pattern-blood type combination.",
			},
		},
		Required: append([]string(nil), requiredFields...),
	}
}

const instruction = `Perform a professional forensic dermatoglyphic analysis on this fingerprint.
1. Identify the specific pattern type (Arch, Loop, Whorl) by locating the core and delta points.
2. Analyze the ridge density and curvature.
3. Based on anthropometric statistical models (and cultural Ketsuekigata theory), predict the most probable blood group.
4. Be decisive and precise.

Output strictly valid JSON matching the schema.`

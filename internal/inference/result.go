package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// Result is the structured prediction returned by the model.
type Result struct {
	BloodGroup  string   `json:"bloodGroup"`
	Confidence  int      `json:"confidence"`
	PatternType string   `json:"patternType"`
	Reasoning   string   `json:"reasoning"`
	Traits      []string `json:"personalityTraits"`
	Rarity      string   `json:"rarity"`
}

// TraitCount is the number of personality descriptors a result must carry.
const TraitCount = 3

var requiredFields = []string{"bloodGroup", "confidence", "patternType", "reasoning", "personalityTraits", "rarity"}

var bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Dermatoglyphic vocabulary, lower-cased. The family names on their own are
// accepted too.
var patternTypes = []string{
	"arch", "plain arch", "tented arch",
	"loop", "ulnar loop", "radial loop", "double loop",
	"whorl", "plain whorl", "central pocket whorl", "central pocket loop whorl",
	"double loop whorl", "accidental whorl",
	"composite",
}

// Decode converts an extracted JSON object into a Result and validates it.
func Decode(raw []byte) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if missing := lo.Filter(requiredFields, func(k string, _ int) bool {
		_, ok := fields[k]
		return !ok
	}); len(missing) > 0 {
		return Result{}, fmt.Errorf("missing fields %s", strings.Join(missing, ", "))
	}

	var r Result
	if err := decodeString(fields, "bloodGroup", &r.BloodGroup); err != nil {
		return Result{}, err
	}
	conf, err := decodeConfidence(fields["confidence"])
	if err != nil {
		return Result{}, err
	}
	r.Confidence = conf
	for k, dst := range map[string]*string{
		"patternType": &r.PatternType,
		"reasoning":   &r.Reasoning,
		"rarity":      &r.Rarity,
	} {
		if err := decodeString(fields, k, dst); err != nil {
			return Result{}, err
		}
	}
	if err := json.Unmarshal(fields["personalityTraits"], &r.Traits); err != nil {
		return Result{}, fmt.Errorf("personalityTraits: %w", err)
	}

	r = r.normalized()
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Validate checks a result against the shape requested from the provider.
func (r Result) Validate() error {
	if !slices.Contains(bloodGroups, r.BloodGroup) {
		return fmt.Errorf("bloodGroup %q is not a recognised ABO/Rh group", r.BloodGroup)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence %d outside 0-100", r.Confidence)
	}
	if !slices.Contains(patternTypes, strings.ToLower(r.PatternType)) {
		return fmt.Errorf("patternType %q is not a dermatoglyphic pattern", r.PatternType)
	}
	if r.Reasoning == "" {
		return fmt.Errorf("reasoning is empty")
	}
	if r.Rarity == "" {
		return fmt.Errorf("rarity is empty")
	}
	if len(r.Traits) != TraitCount {
		return fmt.Errorf("expected %d personalityTraits, got %d", TraitCount, len(r.Traits))
	}
	if slices.Contains(r.Traits, "") {
		return fmt.Errorf("personalityTraits contains an empty entry")
	}
	return nil
}

func (r Result) normalized() Result {
	r.BloodGroup = strings.ToUpper(strings.Join(strings.Fields(r.BloodGroup), ""))
	r.PatternType = strings.Join(strings.Fields(r.PatternType), " ")
	r.Reasoning = strings.TrimSpace(r.Reasoning)
	r.Rarity = strings.TrimSpace(r.Rarity)
	r.Traits = lo.Map(r.Traits, func(s string, _ int) string { return strings.TrimSpace(s) })
	return r
}

func decodeString(fields map[string]json.RawMessage, key string, dst *string) error {
	if err := json.Unmarshal(fields[key], dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Models occasionally answer 92.0 for an integer field.
func decodeConfidence(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("confidence: %w", err)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("confidence %v is not an integer", f)
	}
	return int(f), nil
}

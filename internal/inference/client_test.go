package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/config"
)

var scan = capture.Image{Filename: "thumb.png", MIMEType: "image/png", Data: []byte("fake-png")}

func newTestClient(t *testing.T, url, key string) *Client {
	t.Helper()
	cfg := config.Default().Gemini
	cfg.Endpoint = url
	return NewClient(cfg, WithCredential(func() string { return key }))
}

func textResponse(text string) string {
	resp := map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"parts": []any{map[string]any{"text": text}},
			},
			"finishReason": "STOP",
		}},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestAnalyzeSendsStructuredRequest(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, textResponse(sampleJSON))
	}))
	defer srv.Close()

	r, err := newTestClient(t, srv.URL, "secret").Analyze(context.Background(), scan)
	require.NoError(t, err)
	assert.Equal(t, sampleResult, r)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, scan.Base64(), parts[0].InlineData.Data)
	assert.Contains(t, parts[1].Text, "dermatoglyphic")
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMIMEType)
	assert.InDelta(t, 0.2, got.GenerationConfig.Temperature, 1e-9)
	require.NotNil(t, got.GenerationConfig.ResponseSchema)
	assert.Len(t, got.GenerationConfig.ResponseSchema.Required, 6)
}

func TestAnalyzeMissingCredentialMakesNoCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "").Analyze(context.Background(), scan)
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, ErrMissingCredential.Error(), UserMessage(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestAnalyzeEnvCredential(t *testing.T) {
	t.Setenv("DGP_TEST_API_KEY", "  from-env ")
	assert.Equal(t, "from-env", EnvCredential("DGP_TEST_API_KEY")())
	assert.Empty(t, EnvCredential("DGP_TEST_UNSET_KEY")())
}

func TestAnalyzeFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		kind   Kind
	}{
		"provider rejection": {http.StatusBadRequest, `{"error":{"code":400,"message":"Image too large","status":"INVALID_ARGUMENT"}}`, KindTransport},
		"server error":       {http.StatusInternalServerError, "boom", KindTransport},
		"garbled envelope":   {http.StatusOK, "not json", KindTransport},
		"no candidates":      {http.StatusOK, `{"candidates":[]}`, KindEmpty},
		"blocked":            {http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, KindEmpty},
		"empty text":         {http.StatusOK, textResponse("   "), KindEmpty},
		"prose":              {http.StatusOK, textResponse("Sorry, I can't help with that."), KindParse},
		"wrong shape":        {http.StatusOK, textResponse(`{"bloodGroup":"A+"}`), KindInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, "k").Analyze(context.Background(), scan)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, GenericMessage, UserMessage(err))
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retries")
		})
	}
}

func TestAnalyzeJoinsTextPartsAndSkipsThoughts(t *testing.T) {
	half := len(sampleJSON) / 2
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"text": "thinking about ridges {", "thought": true},
				map[string]any{"text": sampleJSON[:half]},
				map[string]any{"text": sampleJSON[half:]},
			}},
		}},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r, err := newTestClient(t, srv.URL, "k").Analyze(context.Background(), scan)
	require.NoError(t, err)
	assert.Equal(t, sampleResult, r)
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := newTestClient(t, srv.URL, "k").Analyze(ctx, scan)
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.Equal(t, KindCanceled, KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("analyze did not return after cancel")
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.Default().Gemini
	cfg.Endpoint = srv.URL
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, WithCredential(func() string { return "k" }))

	_, err := c.Analyze(context.Background(), scan)
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

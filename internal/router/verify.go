package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openclaw/clawlayer/internal/provider"
)

// verifyTemperature keeps classification output deterministic-ish.
const verifyTemperature = 0.1

// Completer is the slice of provider.ChatClient the verifier needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (*provider.ChatExchange, error)
}

// LLMMatcher implements Verifier by asking a text backend for a strict JSON
// yes/no verdict on whether a message belongs to an intent.
type LLMMatcher struct {
	client     Completer
	intent     string
	utterances []string
}

// NewLLMMatcher builds a verification matcher for one intent.
func NewLLMMatcher(client Completer, intent string, utterances []string) *LLMMatcher {
	return &LLMMatcher{client: client, intent: intent, utterances: utterances}
}

// Verify runs one verification round trip. Every failure mode — transport
// error, timeout, non-200 status, malformed verdict — yields a Verdict with
// Err set and (false, 0) semantics; nothing propagates.
func (m *LLMMatcher) Verify(ctx context.Context, message string) Verdict {
	ex, err := m.client.Complete(ctx, m.buildPrompt(message), verifyTemperature)
	verdict := Verdict{}
	if ex != nil {
		verdict.RawRequest = ex.Request
		verdict.RawResponse = ex.Response
	}
	if err != nil {
		verdict.Err = err.Error()
		return verdict
	}

	isMatch, confidence, perr := parseVerdict(ex.Content)
	if perr != nil {
		verdict.Err = perr.Error()
		return verdict
	}
	verdict.IsMatch = isMatch
	verdict.Confidence = confidence
	return verdict
}

// buildPrompt embeds the intent's example utterances and guards against
// messages that merely mention the intent instead of requesting it.
func (m *LLMMatcher) buildPrompt(message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Determine if the following message is a %s request.\n\n", m.intent)
	fmt.Fprintf(&b, "Example %s requests:\n", m.intent)
	for _, u := range m.utterances {
		fmt.Fprintf(&b, "- %s\n", u)
	}
	fmt.Fprintf(&b, "\nA message that only mentions or quotes a %s is NOT a %s request; ", m.intent, m.intent)
	b.WriteString("answer true only when the user is actually making that request.\n\n")
	fmt.Fprintf(&b, "User message: %q\n\n", message)
	b.WriteString(`Respond with ONLY a JSON object: {"is_match": true/false, "confidence": 0.0-1.0}`)
	return b.String()
}

// parseVerdict decodes the strict JSON verdict, tolerating a markdown code
// fence around it (with or without a language tag).
func parseVerdict(content string) (bool, float64, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, 0, fmt.Errorf("empty verdict content")
	}
	trimmed = stripCodeFence(trimmed)

	var verdict struct {
		IsMatch    bool    `json:"is_match"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(trimmed), &verdict); err != nil {
		return false, 0, fmt.Errorf("JSON parse error: %v", err)
	}
	return verdict.IsMatch, verdict.Confidence, nil
}

// stripCodeFence removes a leading ```lang line and trailing ``` line.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

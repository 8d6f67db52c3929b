package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openclaw/clawlayer/internal/config"
)

// QuickRouter answers from an ordered list of regex/canned-response pairs.
type QuickRouter struct {
	patterns []quickPattern
}

type quickPattern struct {
	regex    *regexp.Regexp
	response string
}

// NewQuickRouter compiles the configured patterns. Patterns are evaluated
// case-insensitively with '.' matching newlines.
func NewQuickRouter(patterns []config.PatternResponse) (*QuickRouter, error) {
	r := &QuickRouter{}
	for _, p := range patterns {
		if p.Pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?is)" + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("quick router pattern %q: %w", p.Pattern, err)
		}
		response := p.Response
		if response == "" {
			response = "Hi"
		}
		r.patterns = append(r.patterns, quickPattern{regex: re, response: response})
	}
	return r, nil
}

func (r *QuickRouter) Name() string { return "quick" }

// Route returns the first matching pattern's response.
func (r *QuickRouter) Route(_ context.Context, message string, _ *RoutingContext) (*RouteResult, []StageTrace) {
	msg := strings.TrimSpace(message)
	for _, p := range r.patterns {
		if p.regex.MatchString(msg) {
			return &RouteResult{Name: "quick", Content: p.response}, nil
		}
	}
	return nil, nil
}

package middleware

import (
	"context"
	"regexp"

	"github.com/ordesk/ordesk/pkg/domain"
	"github.com/ordesk/ordesk/pkg/ports"
)

type piiMiddleware struct {
	next        ports.SessionStore
	keyPatterns []*regexp.Regexp
	valPatterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks PII before a session
// reaches the backing store. keyPatterns match metadata keys whose values
// are replaced wholesale; valuePatterns match substrings inside message
// contents (phone numbers, emails) which are redacted in place.
func NewPIIMiddleware(keyPatterns, valuePatterns []string) Middleware {
	keys := make([]*regexp.Regexp, len(keyPatterns))
	for i, p := range keyPatterns {
		keys[i] = regexp.MustCompile(p)
	}
	vals := make([]*regexp.Regexp, len(valuePatterns))
	for i, p := range valuePatterns {
		vals[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, keyPatterns: keys, valPatterns: vals}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.SessionState) error {
	// Clone so the in-memory state used by the engine keeps its raw values.
	// Clone copies metadata shallowly, so nested maps need their own copy
	// before masking recurses into them.
	cloned := state.Clone()
	cloned.Metadata = deepCopyMap(state.Metadata)

	maskMap(cloned.Metadata, m.keyPatterns)
	for i := range cloned.Messages {
		cloned.Messages[i].Content = maskContent(cloned.Messages[i].Content, m.valPatterns)
	}

	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}

func maskContent(s string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "***")
	}
	return s
}

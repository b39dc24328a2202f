package session

import (
	"fmt"
	"sort"
	"strings"
)

// BuildPrompt renders the contextual prompt for the next collaboration turn:
// environment pairs, then a bounded window of recent exchanges, then the new
// query. A session with no context passes the query through unchanged.
func (m *Manager) BuildPrompt(rec *Record, query string) string {
	if rec == nil || (len(rec.Context.Env) == 0 && len(rec.Context.History) == 0) {
		return query
	}

	var b strings.Builder

	if len(rec.Context.Env) > 0 {
		keys := make([]string, 0, len(rec.Context.Env))
		for k := range rec.Context.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("Environment:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, rec.Context.Env[k])
		}
		b.WriteString("\n")
	}

	history := rec.Context.History
	if window := m.cfg.PromptWindow; window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) > 0 {
		b.WriteString("Previous exchanges:\n")
		for i, ex := range history {
			fmt.Fprintf(&b, "[%d] Q: %s\nA: %s\n", i+1, ex.Query, ex.Response)
		}
		b.WriteString("\n")
	}

	b.WriteString("Current query:\n")
	b.WriteString(query)
	return b.String()
}

package router

import (
	"html"
	"strings"
)

func (m *Router) helpText(owner bool) string {
	m.mu.RLock()
	cmds := m.ordered
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n<code>" + html.EscapeString(usage) + "</code>")
		if c.Description != "" {
			b.WriteString(" - " + html.EscapeString(c.Description))
		}
	}
	return b.String()
}

package rag

import (
	"fmt"
	"strings"
)

// RenderDisplayText formats an answer with its document list for chat
// clients. The no-data sentinel is returned on its own.
func RenderDisplayText(answer Answer, sources []Source) string {
	text := answer.Text()
	if text == NoDataSentinel {
		return NoDataSentinel
	}

	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = defaultTitle
		}
		line := "• " + title
		if s.URL != "" {
			line = fmt.Sprintf("• [%s](%s)", title, s.URL)
		}
		if s.Page > 0 {
			line += fmt.Sprintf(" — стр. %d", s.Page)
		}
		lines = append(lines, line)
	}
	list := "• —"
	if len(lines) > 0 {
		list = strings.Join(lines, "\n")
	}
	return text + "\n\nДокументы:\n" + list
}

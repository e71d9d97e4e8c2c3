package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindroom/matty/internal/domain"
)

// WrapWords greedily packs whitespace-separated words into lines of at
// most width characters. A word wider than a whole line is chopped
// mid-word.
func WrapWords(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line strings.Builder
	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}

	for _, w := range words {
		need := len(w)
		if line.Len() > 0 {
			need += line.Len() + 1
		}
		if need > width {
			flush()
			for len(w) > width {
				lines = append(lines, w[:width])
				w = w[width:]
			}
			if w == "" {
				continue
			}
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	flush()
	return lines
}

// FormatMessage renders one message as terminal lines: a header with
// handle, sender, and time, the word-wrapped body, and a reactions
// line when present.
func FormatMessage(m domain.Message, ownID string, width int) []string {
	senderStyle := SenderStyle
	if m.Sender == ownID {
		senderStyle = OwnStyle
	}
	header := fmt.Sprintf("%s %s %s",
		HandleStyle.Render("["+m.Handle+"]"),
		senderStyle.Render(domain.Localpart(m.Sender)),
		TimeStyle.Render(m.Timestamp.Format("15:04")))
	if m.ThreadHandle != "" {
		header += " " + ThreadStyle.Render("("+m.ThreadHandle+")")
	}

	lines := []string{header}
	for _, l := range strings.Split(m.Body, "\n") {
		lines = append(lines, WrapWords(l, width-2)...)
	}
	if len(m.Reactions) > 0 {
		lines = append(lines, ReactStyle.Render("  "+formatReactions(m.Reactions)))
	}
	return lines
}

// formatReactions renders "👍 2  🎉 1" with emoji in sorted order so
// output is stable.
func formatReactions(reactions map[string][]string) string {
	keys := make([]string, 0, len(reactions))
	for k := range reactions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, len(reactions[k])))
	}
	return strings.Join(parts, "  ")
}

// FormatThreadItem renders one sidebar entry for a thread root.
func FormatThreadItem(root domain.Message, width int) string {
	preview := root.Preview(width - len(root.ThreadHandle) - 4)
	return ThreadStyle.Render(root.ThreadHandle) + " " + preview
}

// RenderCompletionMenu renders up to maxVisible completion items as a
// vertical menu. The selected item is highlighted.
func RenderCompletionMenu(completions []string, selectedIdx, width int) string {
	const maxVisible = 8
	n := len(completions)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	visible := n
	if visible > maxVisible {
		visible = maxVisible
	}
	for i := 0; i < visible; i++ {
		label := completions[i]
		if width > 4 && len(label) > width-4 {
			label = label[:width-4]
		}
		if i == selectedIdx {
			b.WriteString(CompletionSelStyle.Render(" " + label + " "))
		} else {
			b.WriteString(CompletionStyle.Render(" " + label + " "))
		}
		b.WriteString("\n")
	}
	if n > maxVisible {
		b.WriteString(CompletionStyle.Render(fmt.Sprintf(" ... and %d more", n-maxVisible)))
		b.WriteString("\n")
	}
	return b.String()
}

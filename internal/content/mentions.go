package content

import (
	"fmt"
	"html"
	"strings"
)

// ResolveMentions scans body for @token substrings and matches them
// against knownUsers (full Matrix IDs). A token matches when it equals
// a user's localpart (case-sensitive) or the user's full identifier.
// It returns an HTML formatted body with each mention wrapped in a
// matrix.to anchor, plus the matched IDs deduplicated in first-seen
// order. When nothing matches, the formatted body is empty so callers
// can skip markup entirely.
func ResolveMentions(body string, knownUsers []string) (formatted string, ids []string) {
	byLocalpart := make(map[string]string, len(knownUsers))
	full := make(map[string]bool, len(knownUsers))
	for _, u := range knownUsers {
		full[u] = true
		if lp := localpart(u); lp != "" {
			byLocalpart[lp] = u
		}
	}

	var b strings.Builder
	seen := make(map[string]bool)
	matched := false
	i := 0
	for i < len(body) {
		if body[i] != '@' || !atTokenBoundary(body, i) {
			j := i + 1
			for j < len(body) && body[j] != '@' {
				j++
			}
			b.WriteString(html.EscapeString(body[i:j]))
			i = j
			continue
		}

		start := i
		j := i + 1
		for j < len(body) && isIDChar(body[j]) {
			j++
		}
		token := strings.TrimRight(body[i+1:j], ".,:;")
		end := i + 1 + len(token)

		userID := ""
		if full["@"+token] {
			userID = "@" + token
		} else if u, ok := byLocalpart[token]; ok {
			userID = u
		}
		if userID == "" {
			b.WriteString(html.EscapeString(body[start : start+1]))
			i = start + 1
			continue
		}

		matched = true
		if !seen[userID] {
			seen[userID] = true
			ids = append(ids, userID)
		}
		fmt.Fprintf(&b, `<a href="https://matrix.to/#/%s">@%s</a>`, userID, localpart(userID))
		i = end
	}

	if !matched {
		return "", nil
	}
	return b.String(), ids
}

// atTokenBoundary reports whether an @ at index i starts a mention:
// position 0 or immediately after whitespace. This keeps e-mail-like
// substrings such as "someone@ali" from matching.
func atTokenBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '.', '_', '=', '-', '/', ':':
		return true
	}
	return false
}

func localpart(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx]
	}
	return s
}

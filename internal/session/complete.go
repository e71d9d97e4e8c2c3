package session

import (
	"strings"

	"github.com/mindroom/matty/internal/domain"
)

// Candidate is one completion option. Insert is the full input line
// after accepting the candidate (partial token replaced, trailing
// space appended); Display is what the menu shows.
type Candidate struct {
	Insert  string
	Display string
}

// commandsTakingMessageHandle maps commands whose first argument is an
// m<N> message handle; /thread takes a t<N> thread handle instead.
var commandsTakingMessageHandle = map[string]bool{
	"/reply": true, "/react": true, "/edit": true, "/redact": true,
}

// Candidates computes completion candidates for the given input.
// Sources: the slash command table, registry handles (first argument
// of handle-taking commands), and room members for @mention tokens.
func Candidates(input string, users, messageHandles, threadHandles []string) []Candidate {
	if strings.HasPrefix(input, "/") {
		if !strings.Contains(input, " ") {
			return commandCandidates(input)
		}
		return handleCandidates(input, messageHandles, threadHandles)
	}
	return mentionCandidates(input, users)
}

// commandCandidates completes a command name still being typed.
func commandCandidates(partial string) []Candidate {
	lower := strings.ToLower(partial)
	var out []Candidate
	for _, cmd := range domain.CommandDefs {
		if strings.HasPrefix(strings.ToLower(cmd.Name), lower) {
			out = append(out, Candidate{
				Insert:  cmd.Name + " ",
				Display: cmd.Usage + "  " + cmd.Description,
			})
		}
	}
	return out
}

// handleCandidates completes the first argument of a handle-taking
// command against the registry's known tokens.
func handleCandidates(input string, messageHandles, threadHandles []string) []Candidate {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	var pool []string
	switch {
	case cmd == "/thread":
		pool = threadHandles
	case commandsTakingMessageHandle[cmd]:
		pool = messageHandles
	default:
		return nil
	}

	// Only the first argument is a handle.
	if len(fields) > 2 || (len(fields) == 2 && strings.HasSuffix(input, " ")) {
		return nil
	}
	partial := ""
	if len(fields) == 2 {
		partial = strings.ToLower(fields[1])
	}

	var out []Candidate
	for _, h := range pool {
		if strings.HasPrefix(strings.ToLower(h), partial) {
			out = append(out, Candidate{
				Insert:  cmd + " " + h + " ",
				Display: h,
			})
		}
	}
	return out
}

// mentionCandidates completes an unfinished @token. The @ must sit at
// position 0 or right after whitespace so e-mail-like substrings don't
// trigger completion. When two users share a localpart across domains,
// the insert text is the full ID for all of them.
func mentionCandidates(input string, users []string) []Candidate {
	at := strings.LastIndexByte(input, '@')
	if at < 0 {
		return nil
	}
	if at > 0 {
		switch input[at-1] {
		case ' ', '\t', '\n':
		default:
			return nil
		}
	}
	token := input[at+1:]
	if strings.ContainsAny(token, " \t\n") {
		return nil
	}
	lower := strings.ToLower(token)

	var matches []string
	localparts := make(map[string]int)
	for _, u := range users {
		lp := domain.Localpart(u)
		if strings.HasPrefix(strings.ToLower(lp), lower) {
			matches = append(matches, u)
			localparts[strings.ToLower(lp)]++
		}
	}

	var out []Candidate
	for _, u := range matches {
		lp := domain.Localpart(u)
		insert := "@" + lp
		if localparts[strings.ToLower(lp)] > 1 {
			insert = u
		}
		out = append(out, Candidate{
			Insert:  input[:at] + insert + " ",
			Display: u,
		})
	}
	return out
}

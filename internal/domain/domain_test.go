package domain

import "testing"

func TestLocalpart(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full matrix id", "@ana:example.org", "ana"},
		{"id with port in domain", "@bob:matrix.example.com", "bob"},
		{"no colon", "@plain", "@plain"},
		{"no at sign", "ana:example.org", "ana:example.org"},
		{"empty", "", ""},
		{"dotted localpart", "@first.last:example.org", "first.last"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Localpart(tt.in); got != tt.want {
				t.Errorf("Localpart(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMessagePreview(t *testing.T) {
	m := Message{Body: "line one\nline two"}
	if got := m.Preview(30); got != "line one line two" {
		t.Errorf("Preview = %q", got)
	}
	m = Message{Body: "abcdefghij"}
	if got := m.Preview(4); got != "abcd..." {
		t.Errorf("Preview = %q", got)
	}
}

func TestCommandDefs(t *testing.T) {
	if !IsKnownCommand("/back") {
		t.Error("expected /back to be a known command")
	}
	if IsKnownCommand("/bogus") {
		t.Error("expected /bogus to be unknown")
	}
	if got := CommandUsage("/reply"); got != "/reply <handle> <text>" {
		t.Errorf("CommandUsage(/reply) = %q", got)
	}
	if got := CommandUsage("/bogus"); got != "" {
		t.Errorf("CommandUsage(/bogus) = %q, want empty", got)
	}
}

package domain

// CommandDef describes a slash command available in the chat input.
type CommandDef struct {
	Name        string
	Usage       string
	Description string
}

// CommandDefs is the single source of truth for all slash commands.
var CommandDefs = []CommandDef{
	{Name: "/back", Usage: "/back", Description: "exit thread view"},
	{Name: "/room", Usage: "/room <name>", Description: "switch room"},
	{Name: "/thread", Usage: "/thread <handle>", Description: "open a thread"},
	{Name: "/reply", Usage: "/reply <handle> <text>", Description: "reply to a message"},
	{Name: "/react", Usage: "/react <handle> <emoji>", Description: "react to a message"},
	{Name: "/edit", Usage: "/edit <handle> <text>", Description: "edit your message"},
	{Name: "/redact", Usage: "/redact <handle>", Description: "delete a message"},
}

// CommandUsage returns the usage string for a command name, or "" if unknown.
func CommandUsage(name string) string {
	for _, c := range CommandDefs {
		if c.Name == name {
			return c.Usage
		}
	}
	return ""
}

// IsKnownCommand reports whether name is a defined slash command.
func IsKnownCommand(name string) bool {
	for _, c := range CommandDefs {
		if c.Name == name {
			return true
		}
	}
	return false
}

package tui

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	StatusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	SenderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true)
	OwnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	HandleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	TimeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ReactStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("222"))
	ThreadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("147"))
	PromptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	InputStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	NoticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	SidebarStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(lipgloss.Color("240"))
	SidebarTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true)

	CompletionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	CompletionSelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
)

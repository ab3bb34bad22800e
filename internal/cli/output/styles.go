package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header    lipgloss.Style
	Subheader lipgloss.Style
	Bold      lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Muted     lipgloss.Style
	TableName lipgloss.Style
	Column    lipgloss.Style
}

// NewStyles creates styles bound to a lipgloss renderer so colour
// detection follows the renderer's writer.
func NewStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:    lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Subheader: lr.NewStyle().Bold(true),
		Bold:      lr.NewStyle().Bold(true),
		Success:   lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:   lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:     lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:      lr.NewStyle().Foreground(lipgloss.Color("14")),
		Muted:     lr.NewStyle().Foreground(lipgloss.Color("8")),
		TableName: lr.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		Column:    lr.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

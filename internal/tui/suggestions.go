package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command bar
type Suggestions struct {
	tasks       []string
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	command     string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Completion  string
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "Create a scheduler task"},
	{Text: "add-legacy", Description: "Create a legacy task"},
	{Text: "edit", Description: "Change fields of a scheduler task"},
	{Text: "delete", Description: "Delete a scheduler task"},
	{Text: "cron", Description: "Validate a cron expression"},
	{Text: "logs", Description: "Show the logs of a task"},
	{Text: "clear", Description: "Clear the shown task's logs"},
	{Text: "config", Description: "Show backend configuration"},
	{Text: "set", Description: "Save backend configuration"},
	{Text: "stop-reconnect", Description: "Stop automatic reconnection"},
	{Text: "quit", Description: "Exit"},
}

// Commands that take a task id as their first argument.
var idCommands = map[string]bool{"edit": true, "delete": true, "logs": true}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// SetTasks sets the task ids offered after id-taking commands.
func (s *Suggestions) SetTasks(ids []string) {
	s.tasks = ids
}

// Update recomputes the suggestions for the current input.
func (s *Suggestions) Update(input string) {
	s.selectedIdx = 0
	s.filtered = nil
	s.command = ""

	if strings.TrimSpace(input) == "" {
		s.visible = false
		return
	}

	name, rest, hasArgs := strings.Cut(strings.TrimLeft(input, " "), " ")
	if !hasArgs {
		for _, item := range commandSuggestions {
			if strings.HasPrefix(item.Text, strings.ToLower(name)) {
				item.Completion = item.Text + " "
				s.filtered = append(s.filtered, item)
			}
		}
		s.visible = true
		return
	}

	if !idCommands[name] || strings.Contains(rest, " ") {
		s.visible = false
		return
	}
	s.command = name
	for _, id := range s.tasks {
		if strings.HasPrefix(id, rest) {
			s.filtered = append(s.filtered, SuggestionItem{
				Text:        id,
				Description: "task",
				Completion:  name + " " + id + " ",
			})
		}
	}
	s.visible = true
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	suggestionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(width - 4)

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	highlight := lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)

	header := "Commands"
	if s.command != "" {
		header = "Tasks"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		var line string
		if i == s.selectedIdx {
			line = highlight.Render("▶ "+item.Text) + " " + highlight.Render(item.Description)
		} else {
			line = itemStyle.Render("  "+item.Text) + " " + descStyle.Render(item.Description)
		}
		b.WriteString(line + "\n")
	}

	return suggestionStyle.Render(strings.TrimRight(b.String(), "\n"))
}

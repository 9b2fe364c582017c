package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/models"
	"github.com/kballard/go-shellquote"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "add, edit, delete, cron, logs, clear, config, set, stop-reconnect, quit"
	ti.CharLimit = 512
	return &CmdBarModel{input: ti}
}

// Focused reports whether the bar takes key input.
func (m *CmdBarModel) Focused() bool {
	return m.focused
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Value returns the current input.
func (m *CmdBarModel) Value() string {
	return m.input.Value()
}

// SetValue replaces the input and moves the cursor to its end.
func (m *CmdBarModel) SetValue(s string) {
	m.input.SetValue(s)
	m.input.CursorEnd()
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := m.input.Value()
	m.Blur()
	return val
}

// Update passes key input to the text field.
func (m *CmdBarModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// View renders the command bar
func (m *CmdBarModel) View(width int) string {
	if m.focused {
		return cmdBarStyle.Width(width).Render(promptStyle.Render(": ") + m.input.View())
	}
	return cmdBarStyle.Width(width).Render("Press : to enter a command")
}

// cmdTarget is the task a command applies to when it names none.
type cmdTarget struct {
	stream dashboard.Stream
	taskID string
}

func usage(text string) tea.Msg {
	return cmdResultMsg{level: dashboard.LevelWarning, message: "Usage: " + text}
}

// Execute parses a command line and returns the command that performs it.
// Dashboard operations report their own outcome through the view.
func Execute(ctx context.Context, dash *dashboard.Dashboard, input string, target cmdTarget) tea.Cmd {
	words, err := shellquote.Split(input)
	if err != nil {
		return func() tea.Msg {
			return cmdResultMsg{level: dashboard.LevelError, message: "Error: " + err.Error()}
		}
	}
	if len(words) == 0 {
		return nil
	}
	name, args := words[0], words[1:]

	idArg := func() string {
		if len(args) > 0 && !strings.Contains(args[0], "=") {
			return args[0]
		}
		return target.taskID
	}

	switch name {
	case "quit", "q":
		return tea.Quit

	case "add":
		return func() tea.Msg {
			if len(args) < 4 {
				return usage(`add <id> <name> "<schedule>" "<command>" [description]`)
			}
			task := models.SchedulerTask{
				ID:          args[0],
				Name:        args[1],
				Schedule:    args[2],
				Exec:        args[3],
				Description: strings.Join(args[4:], " "),
			}
			_ = dash.CreateSchedulerTask(ctx, task)
			return opDoneMsg{}
		}

	case "add-legacy":
		return func() tea.Msg {
			if len(args) < 3 {
				return usage(`add-legacy <id> <name> "<command>" [description]`)
			}
			task := models.LegacyTask{
				ID:          args[0],
				Name:        args[1],
				Command:     args[2],
				Description: strings.Join(args[3:], " "),
			}
			if _, err := dash.Client().CreateLegacyTask(ctx, task); err != nil {
				return cmdResultMsg{level: dashboard.LevelError, message: "Failed to create task: " + err.Error()}
			}
			dash.RefreshLegacyTasks(ctx)
			return cmdResultMsg{level: dashboard.LevelSuccess, message: "Task " + task.ID + " created"}
		}

	case "edit":
		return func() tea.Msg {
			id := idArg()
			fields := args
			if len(args) > 0 && args[0] == id {
				fields = args[1:]
			}
			if id == "" || len(fields) == 0 {
				return usage("edit [id] field=value ...")
			}
			task, err := dash.Client().GetSchedulerTask(ctx, id)
			if err != nil {
				return cmdResultMsg{level: dashboard.LevelError, message: "Failed to load task: " + err.Error()}
			}
			if err := applyFields(task, fields); err != nil {
				return cmdResultMsg{level: dashboard.LevelError, message: err.Error()}
			}
			_ = dash.UpdateSchedulerTask(ctx, *task)
			return opDoneMsg{}
		}

	case "delete":
		return func() tea.Msg {
			id := idArg()
			if id == "" {
				return usage("delete <id>")
			}
			_ = dash.DeleteSchedulerTask(ctx, id)
			return opDoneMsg{}
		}

	case "cron":
		return func() tea.Msg {
			if len(args) == 0 {
				return usage(`cron "<expression>"`)
			}
			_, _ = dash.ValidateCron(ctx, strings.Join(args, " "))
			return opDoneMsg{}
		}

	case "logs":
		return func() tea.Msg {
			id := idArg()
			if id == "" {
				return usage("logs <id>")
			}
			_ = dash.ViewLogs(ctx, target.stream, id)
			return opDoneMsg{}
		}

	case "clear":
		return func() tea.Msg {
			_ = dash.ClearLogs(ctx, target.stream)
			return opDoneMsg{}
		}

	case "stop-reconnect":
		return func() tea.Msg {
			dash.StopReconnecting()
			return opDoneMsg{}
		}

	case "config":
		return func() tea.Msg {
			cfg, err := dash.LoadConfig(ctx)
			if err != nil {
				return opDoneMsg{}
			}
			return configLoadedMsg{config: cfg}
		}

	case "set":
		return func() tea.Msg {
			if len(args) == 0 {
				return usage("set key=value ...")
			}
			cfg := make(map[string]string, len(args))
			for _, a := range args {
				k, v, ok := strings.Cut(a, "=")
				if !ok || k == "" {
					return usage("set key=value ...")
				}
				cfg[k] = v
			}
			_ = dash.SaveConfig(ctx, cfg)
			return opDoneMsg{}
		}
	}

	return func() tea.Msg {
		return cmdResultMsg{level: dashboard.LevelError, message: fmt.Sprintf("Unknown command: %s", name)}
	}
}

// applyFields sets scheduler task fields from key=value pairs.
func applyFields(task *models.SchedulerTask, fields []string) error {
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", f)
		}
		var err error
		switch k {
		case "name":
			task.Name = v
		case "exec", "command":
			task.Exec = v
		case "schedule":
			task.Schedule = v
		case "desc", "description":
			task.Description = v
		case "script":
			task.ScriptType = v
		case "log":
			task.LogPath = v
		case "timeout":
			task.Timeout, err = strconv.Atoi(v)
		case "retry":
			task.Retry, err = strconv.Atoi(v)
		case "retry_interval":
			task.RetryInterval, err = strconv.Atoi(v)
		default:
			return fmt.Errorf("unknown field %q", k)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}
	return nil
}

// formatConfig renders backend settings as sorted key=value pairs.
func formatConfig(cfg map[string]string) string {
	if len(cfg) == 0 {
		return "No configuration stored"
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + cfg[k]
	}
	return "Config: " + strings.Join(pairs, ", ")
}

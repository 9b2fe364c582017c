// Package tui provides the interactive terminal dashboard for TaskDeck.
package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/taskdeck/internal/dashboard"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Background(warningColor).
			Foreground(lipgloss.Color("#111827")).
			Bold(true).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// App is the main TUI application model.
type App struct {
	dash   *dashboard.Dashboard
	view   *ProgramView
	ctx    context.Context
	cancel context.CancelFunc

	legacy      *TaskListModel
	scheduler   *TaskListModel
	focus       dashboard.Stream
	logs        *LogPaneModel
	cmdbar      *CmdBarModel
	suggestions *Suggestions

	message      string
	messageLevel dashboard.Level
	banner       dashboard.Banner
	width        int
	height       int
}

// New creates the TUI for dash. view must be the View dash draws on.
func New(dash *dashboard.Dashboard, view *ProgramView) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		dash:        dash,
		view:        view,
		ctx:         ctx,
		cancel:      cancel,
		legacy:      NewTaskListModel("Tasks"),
		scheduler:   NewTaskListModel("Scheduled"),
		focus:       dashboard.StreamLegacy,
		logs:        NewLogPaneModel(),
		cmdbar:      NewCmdBarModel(),
		suggestions: NewSuggestions(),
		width:       100,
		height:      30,
	}
}

// Run starts the TUI application and closes the dashboard when it exits.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	a.view.Attach(p)
	_, err := p.Run()
	a.cancel()
	a.dash.Close()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.do(func(ctx context.Context) error {
		a.dash.Start(ctx)
		return nil
	})
}

// do runs a dashboard operation off the event loop. The dashboard reports
// results through the view, which sends them back into Update.
func (a *App) do(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		_ = fn(a.ctx)
		return opDoneMsg{}
	}
}

func (a *App) list(stream dashboard.Stream) *TaskListModel {
	if stream == dashboard.StreamLegacy {
		return a.legacy
	}
	return a.scheduler
}

func (a *App) setMessage(level dashboard.Level, text string) {
	a.messageLevel = level
	a.message = text
}

func (a *App) refreshSuggestions() {
	ids := append(a.legacy.IDs(), a.scheduler.IDs()...)
	a.suggestions.SetTasks(ids)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.cmdbar.Focused() {
			return a, a.updateCmdBar(msg)
		}
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logs.SetSize(a.width-4, a.logHeight())

	case legacyTasksMsg:
		a.legacy.SetLegacyTasks(msg.tasks)
		a.refreshSuggestions()
	case schedulerTasksMsg:
		a.scheduler.SetSchedulerTasks(msg.tasks)
		a.refreshSuggestions()
	case legacyStatusMsg:
		a.legacy.UpdateStatus(msg.status.ID, string(msg.status.Status), msg.status.Enabled)
	case listErrorMsg:
		a.list(msg.stream).SetError(msg.err)

	case logLoadingMsg:
		a.logs.Loading(msg.stream, msg.taskID)
	case legacyLogsMsg:
		a.logs.SetLegacy(msg.taskID, msg.entries)
	case schedulerLogsMsg:
		a.logs.SetScheduler(msg.batch)
	case logErrorMsg:
		a.logs.SetError(msg.stream, msg.taskID, msg.err)
	case autoRefreshMsg:
		a.logs.SetAutoRefresh(msg.stream, msg.on)
	case clearLogsMsg:
		a.logs.Clear(msg.stream, msg.placeholder)

	case messageMsg:
		a.setMessage(msg.level, msg.text)
	case cmdResultMsg:
		a.setMessage(msg.level, msg.message)
	case configLoadedMsg:
		a.setMessage(dashboard.LevelInfo, formatConfig(msg.config))
	case bannerMsg:
		a.banner = msg.banner
	}
	return a, nil
}

func (a *App) updateCmdBar(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.cmdbar.Blur()
		a.suggestions.Update("")
		return nil
	case "enter":
		input := a.cmdbar.Submit()
		a.suggestions.Update("")
		target := cmdTarget{stream: a.focus}
		if sel := a.list(a.focus).Selected(); sel != nil {
			target.taskID = sel.ID
		}
		if lid := a.dash.LogSelection(a.focus); lid != "" {
			target.taskID = lid
		}
		return Execute(a.ctx, a.dash, input, target)
	case "tab":
		if sel := a.suggestions.Selected(); sel != nil {
			a.cmdbar.SetValue(sel.Completion)
			a.suggestions.Update(a.cmdbar.Value())
		}
		return nil
	case "up":
		a.suggestions.Prev()
		return nil
	case "down":
		a.suggestions.Next()
		return nil
	}
	cmd := a.cmdbar.Update(msg)
	a.suggestions.Update(a.cmdbar.Value())
	return cmd
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	stream := a.focus
	sel := a.list(stream).Selected()

	switch msg.String() {
	case "ctrl+c", "q":
		a.cancel()
		return tea.Quit
	case ":", "/":
		return a.cmdbar.Focus()
	case "tab":
		if a.focus == dashboard.StreamLegacy {
			a.focus = dashboard.StreamScheduler
		} else {
			a.focus = dashboard.StreamLegacy
		}
		a.logs.Show(a.focus)
		return nil
	case "up", "k":
		a.list(stream).Up()
		return nil
	case "down", "j":
		a.list(stream).Down()
		return nil
	case "pgup":
		a.logs.ScrollUp()
		return nil
	case "pgdown":
		a.logs.ScrollDown()
		return nil
	case "r":
		return a.do(func(ctx context.Context) error {
			a.dash.RefreshLegacyTasks(ctx)
			a.dash.RefreshSchedulerTasks(ctx)
			return nil
		})
	case "l":
		return a.do(func(ctx context.Context) error { return a.dash.RefreshLogs(ctx, stream) })
	case "p":
		return a.do(func(ctx context.Context) error { return a.dash.ToggleLogAutoRefresh(ctx, stream) })
	case "c":
		return a.do(func(ctx context.Context) error { return a.dash.ClearLogs(ctx, stream) })
	}

	if sel == nil {
		switch msg.String() {
		case "enter", "s", "x", "e":
			a.setMessage(dashboard.LevelWarning, "Select a task first")
		}
		return nil
	}
	id := sel.ID

	switch msg.String() {
	case "enter":
		return a.do(func(ctx context.Context) error { return a.dash.ViewLogs(ctx, stream, id) })
	case "s":
		if stream == dashboard.StreamLegacy {
			return a.do(func(ctx context.Context) error { return a.dash.StartLegacyTask(ctx, id) })
		}
		return a.do(func(ctx context.Context) error { return a.dash.RunSchedulerTask(ctx, id) })
	case "x":
		if stream == dashboard.StreamLegacy {
			return a.do(func(ctx context.Context) error { return a.dash.StopLegacyTask(ctx, id) })
		}
		a.setMessage(dashboard.LevelWarning, "Scheduled tasks run to completion")
	case "e":
		enabled := !sel.Enabled
		if stream == dashboard.StreamLegacy {
			return a.do(func(ctx context.Context) error { return a.dash.ToggleLegacyTask(ctx, id, enabled) })
		}
		return a.do(func(ctx context.Context) error { return a.dash.ToggleSchedulerTask(ctx, id, enabled) })
	}
	return nil
}

func (a *App) listHeight() int {
	return max((a.height-10)/2, 5)
}

func (a *App) logHeight() int {
	return max(a.height-a.listHeight()-12, 3)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	conn := onlineStyle.Render("● CONNECTED")
	switch {
	case a.dash.Reconnecting():
		conn = offlineStyle.Render("○ RECONNECTING")
	case !a.dash.Connected():
		conn = offlineStyle.Render("○ DISCONNECTED")
	}
	header := titleStyle.Render("TaskDeck") + "  " + conn
	if a.dash.Busy() {
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render("[working]")
	}
	b.WriteString(header + "\n")

	if a.banner != dashboard.BannerHidden {
		text := a.banner.String()
		if a.banner == dashboard.BannerReconnecting {
			text += "  (:stop-reconnect to give up)"
		}
		b.WriteString(bannerStyle.Width(a.width).Render(text) + "\n")
	} else {
		b.WriteString(strings.Repeat("─", a.width) + "\n")
	}

	half := a.width / 2
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		a.legacy.View(half, a.listHeight(), a.focus == dashboard.StreamLegacy),
		a.scheduler.View(a.width-half, a.listHeight(), a.focus == dashboard.StreamScheduler),
	) + "\n")

	b.WriteString(a.logs.View(a.width) + "\n")

	if a.message != "" {
		b.WriteString(messageStyle(a.messageLevel).Render(a.message))
	}
	b.WriteString("\n")

	b.WriteString(a.cmdbar.View(a.width))
	if a.suggestions.IsVisible() {
		b.WriteString("\n" + a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	status := " Tab:pane | ↑↓:nav | Enter:logs | s:start/run | x:stop | e:enable | r:refresh | l:reload logs | p:pause | c:clear | ::command | q:quit"
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func messageStyle(level dashboard.Level) lipgloss.Style {
	switch level {
	case dashboard.LevelSuccess:
		return lipgloss.NewStyle().Foreground(successColor)
	case dashboard.LevelWarning:
		return lipgloss.NewStyle().Foreground(warningColor)
	case dashboard.LevelError:
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(cyanColor)
	}
}

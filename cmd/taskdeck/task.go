package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage long-running (legacy) tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskAddCmd = &cobra.Command{
	Use:   "add [task-id]",
	Short: "Add a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAdd,
}

var taskStartCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Start a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var taskStopCmd = &cobra.Command{
	Use:   "stop [task-id]",
	Short: "Stop a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStop,
}

var taskToggleCmd = &cobra.Command{
	Use:   "toggle [task-id]",
	Short: "Enable or disable a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskToggle,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the run state of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs [task-id]",
	Short: "Show task log entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLogs,
}

var taskClearLogsCmd = &cobra.Command{
	Use:   "clear-logs [task-id]",
	Short: "Clear the log of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskClearLogs,
}

var (
	taskName    string
	taskCommand string
	taskDesc    string
	taskLimit   int
	taskEnable  bool
	taskDisable bool
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskStartCmd, taskStopCmd, taskToggleCmd,
		taskStatusCmd, taskLogsCmd, taskClearLogsCmd)

	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Task name (required)")
	taskAddCmd.Flags().StringVar(&taskCommand, "cmd", "", "Command line to run (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.MarkFlagRequired("name")
	taskAddCmd.MarkFlagRequired("cmd")

	taskLogsCmd.Flags().IntVar(&taskLimit, "limit", 100, "Number of entries to show")

	taskToggleCmd.Flags().BoolVar(&taskEnable, "enable", false, "Enable the task")
	taskToggleCmd.Flags().BoolVar(&taskDisable, "disable", false, "Disable the task")
	taskToggleCmd.MarkFlagsMutuallyExclusive("enable", "disable")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	tasks, err := c.ListLegacyTasks(cmd.Context())
	if err != nil {
		return apiError("list tasks", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tENABLED\tCOMMAND")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.ID, truncate(t.Name, 40), t.Status, t.Enabled, truncate(t.Command, 50))
	}
	return w.Flush()
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.CreateLegacyTask(cmd.Context(), models.LegacyTask{
		ID:          args[0],
		Name:        taskName,
		Command:     taskCommand,
		Description: taskDesc,
	})
	if err != nil {
		return apiError("create task", err)
	}
	printMessage(msg, "Created task: "+args[0])
	return nil
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.StartLegacyTask(cmd.Context(), args[0])
	if err != nil {
		return apiError("start task", err)
	}
	printMessage(msg, "Task "+args[0]+" started")
	return nil
}

func runTaskStop(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.StopLegacyTask(cmd.Context(), args[0])
	if err != nil {
		return apiError("stop task", err)
	}
	printMessage(msg, "Task "+args[0]+" stopped")
	return nil
}

func runTaskToggle(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	enabled, err := toggleTarget(cmd.Context(), taskEnable, taskDisable, func(ctx context.Context) (bool, error) {
		status, err := c.LegacyTaskStatus(ctx, args[0])
		if err != nil {
			return false, err
		}
		return status.Enabled, nil
	})
	if err != nil {
		return apiError("get task", err)
	}
	msg, err := c.ToggleLegacyTask(cmd.Context(), args[0], enabled)
	if err != nil {
		return apiError("toggle task", err)
	}
	printMessage(msg, fmt.Sprintf("Task %s enabled=%t", args[0], enabled))
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	status, err := c.LegacyTaskStatus(cmd.Context(), args[0])
	if err != nil {
		return apiError("get status", err)
	}
	fmt.Printf("ID:      %s\n", status.ID)
	fmt.Printf("Status:  %s\n", status.Status)
	fmt.Printf("Enabled: %t\n", status.Enabled)
	return nil
}

func runTaskLogs(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	entries, err := c.LegacyLogs(cmd.Context(), args[0], taskLimit)
	if err != nil {
		return apiError("get logs", err)
	}
	if len(entries) == 0 {
		fmt.Println("No log entries")
		return nil
	}
	for _, e := range entries {
		if e.Raw != "" {
			fmt.Println(e.Raw)
			continue
		}
		fmt.Printf("%s %-7s %s\n", e.Timestamp, e.Level, e.Message)
	}
	return nil
}

func runTaskClearLogs(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.ClearLegacyLogs(cmd.Context(), args[0])
	if err != nil {
		return apiError("clear logs", err)
	}
	printMessage(msg, "Logs cleared")
	return nil
}

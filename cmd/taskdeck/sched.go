package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/spf13/cobra"
)

var schedCmd = &cobra.Command{
	Use:     "sched",
	Aliases: []string{"scheduler"},
	Short:   "Manage scheduled tasks",
}

var schedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	Args:  cobra.NoArgs,
	RunE:  runSchedList,
}

var schedShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedShow,
}

var schedAddCmd = &cobra.Command{
	Use:   "add [task-id]",
	Short: "Create a scheduled task (created disabled)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedAdd,
}

var schedRunCmd = &cobra.Command{
	Use:   "run [task-id]",
	Short: "Run a scheduled task once",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedRun,
}

var schedToggleCmd = &cobra.Command{
	Use:   "toggle [task-id]",
	Short: "Enable or disable a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedToggle,
}

var schedDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedDelete,
}

var schedLogsCmd = &cobra.Command{
	Use:   "logs [task-id]",
	Short: "Show the log of a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedLogs,
}

var schedClearLogsCmd = &cobra.Command{
	Use:   "clear-logs [task-id]",
	Short: "Clear the log of a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedClearLogs,
}

var schedValidateCmd = &cobra.Command{
	Use:   "validate-cron [expression]",
	Short: "Validate a five-field cron expression",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSchedValidate,
}

var (
	schedName     string
	schedExec     string
	schedSchedule string
	schedDesc     string
	schedTimeout  int
	schedRetry    int
	schedInterval int
	schedEnable   bool
	schedDisable  bool
)

func init() {
	schedCmd.AddCommand(schedListCmd, schedShowCmd, schedAddCmd, schedRunCmd, schedToggleCmd,
		schedDeleteCmd, schedLogsCmd, schedClearLogsCmd, schedValidateCmd)

	schedAddCmd.Flags().StringVar(&schedName, "name", "", "Task name (required)")
	schedAddCmd.Flags().StringVar(&schedExec, "exec", "", "Command line to run (required)")
	schedAddCmd.Flags().StringVar(&schedSchedule, "schedule", "", "Cron schedule, e.g. \"*/5 * * * *\"")
	schedAddCmd.Flags().StringVar(&schedDesc, "desc", "", "Task description")
	schedAddCmd.Flags().IntVar(&schedTimeout, "timeout", 0, "Timeout in seconds, 0 for none")
	schedAddCmd.Flags().IntVar(&schedRetry, "retry", 0, "Retries after a failed run")
	schedAddCmd.Flags().IntVar(&schedInterval, "retry-interval", 60, "Seconds between retries")
	schedAddCmd.MarkFlagRequired("name")
	schedAddCmd.MarkFlagRequired("exec")

	schedToggleCmd.Flags().BoolVar(&schedEnable, "enable", false, "Enable the task")
	schedToggleCmd.Flags().BoolVar(&schedDisable, "disable", false, "Disable the task")
	schedToggleCmd.MarkFlagsMutuallyExclusive("enable", "disable")
}

func runSchedList(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	tasks, err := c.ListSchedulerTasks(cmd.Context())
	if err != nil {
		return apiError("list tasks", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tENABLED\tNEXT RUN")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.ID, truncate(t.Name, 40), t.Schedule, t.Enabled, t.NextRunTime)
	}
	return w.Flush()
}

func runSchedShow(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	task, err := c.GetSchedulerTask(cmd.Context(), args[0])
	if err != nil {
		return apiError("get task", err)
	}
	out, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runSchedAdd(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	task := models.SchedulerTask{
		ID:            args[0],
		Name:          schedName,
		Exec:          schedExec,
		Schedule:      schedSchedule,
		Description:   schedDesc,
		Timeout:       schedTimeout,
		Retry:         schedRetry,
		RetryInterval: schedInterval,
		LogPath:       "logs/task_" + args[0] + ".log",
		Env:           map[string]string{},
		Dependencies:  []string{},
		Notify:        map[string]any{},
	}
	msg, err := c.CreateSchedulerTask(cmd.Context(), task)
	if err != nil {
		return apiError("create task", err)
	}
	printMessage(msg, "Created task: "+task.ID)
	return nil
}

func runSchedRun(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.RunSchedulerTaskOnce(cmd.Context(), args[0])
	if err != nil {
		return apiError("run task", err)
	}
	printMessage(msg, "Task "+args[0]+" started")
	return nil
}

func runSchedToggle(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	enabled, err := toggleTarget(cmd.Context(), schedEnable, schedDisable, func(ctx context.Context) (bool, error) {
		task, err := c.GetSchedulerTask(ctx, args[0])
		if err != nil {
			return false, err
		}
		return task.Enabled, nil
	})
	if err != nil {
		return apiError("get task", err)
	}
	msg, err := c.ToggleSchedulerTask(cmd.Context(), args[0], enabled)
	if err != nil {
		return apiError("toggle task", err)
	}
	printMessage(msg, fmt.Sprintf("Task %s enabled=%t", args[0], enabled))
	return nil
}

func runSchedDelete(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.DeleteSchedulerTask(cmd.Context(), args[0])
	if err != nil {
		return apiError("delete task", err)
	}
	printMessage(msg, "Deleted task: "+args[0])
	return nil
}

func runSchedLogs(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	batch, err := c.SchedulerLogs(cmd.Context(), args[0])
	if err != nil {
		return apiError("get logs", err)
	}
	if batch.LogFile != "" {
		fmt.Printf("# %s\n", batch.LogFile)
	}
	if len(batch.Lines) == 0 {
		fmt.Println("No log entries")
		return nil
	}
	for _, l := range batch.Lines {
		fmt.Printf("%4d  %s\n", l.Line, l.Content)
	}
	return nil
}

func runSchedClearLogs(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	msg, err := c.ClearSchedulerLogs(cmd.Context(), args[0])
	if err != nil {
		return apiError("clear logs", err)
	}
	printMessage(msg, "Logs cleared")
	return nil
}

func runSchedValidate(cmd *cobra.Command, args []string) error {
	c, done := newAPIClient()
	defer done()

	result, err := c.ValidateCron(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return apiError("validate cron", err)
	}
	if !result.Valid {
		return fmt.Errorf("invalid schedule: %s", result.Error)
	}
	fmt.Printf("Valid, next run %s\n", result.NextRun)
	return nil
}

// toggleTarget resolves --enable/--disable, flipping the current value when neither is set.
func toggleTarget(ctx context.Context, enable, disable bool, current func(context.Context) (bool, error)) (bool, error) {
	switch {
	case enable:
		return true, nil
	case disable:
		return false, nil
	}
	on, err := current(ctx)
	if err != nil {
		return false, err
	}
	return !on, nil
}

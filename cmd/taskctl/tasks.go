package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amultiwary/TaskApp/internal/dashboard"
	"github.com/amultiwary/TaskApp/internal/models"
)

func listCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := dashboard.ParseFilter(status)
			if err != nil {
				return err
			}
			if err := a.ctrl.SetFilter(cmd.Context(), filter); err != nil {
				return notLoggedIn(err)
			}
			printTasks(a.stdout, a.ctrl.Snapshot().Tasks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "all", "all, pending or completed")
	return cmd
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ctrl.LoadAll(cmd.Context()); err != nil {
				return notLoggedIn(err)
			}
			printStats(a.stdout, a.ctrl.Snapshot().Stats)
			return nil
		},
	}
}

func addCmd(a *app) *cobra.Command {
	var description, priority, due string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.CreateTaskRequest{
				Title:       args[0],
				Description: description,
				Priority:    models.TaskPriority(priority),
			}
			if due != "" {
				d, err := models.ParseDate(due)
				if err != nil {
					return fmt.Errorf("invalid --due: %w", err)
				}
				req.DueDate = &d
			}
			task, err := a.ctrl.Create(cmd.Context(), req)
			if err != nil {
				return notLoggedIn(err)
			}
			fmt.Fprintf(a.stdout, "Created %s %s\n", shortID(task.ID), task.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium (default) or high")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	return cmd
}

func editCmd(a *app) *cobra.Command {
	var title, description, priority, due string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title, description, priority or due date of a task",
		Long: `Change fields of a task. Only the flags given are sent.
Pass --due none to clear the due date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var req models.UpdateTaskRequest
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("priority") {
				p := models.TaskPriority(priority)
				req.Priority = &p
			}
			if flags.Changed("due") {
				req.DueDate.Set = true
				if !strings.EqualFold(due, "none") {
					d, err := models.ParseDate(due)
					if err != nil {
						return fmt.Errorf("invalid --due: %w", err)
					}
					req.DueDate.Value = &d
				}
			}
			if req.Empty() {
				return errors.New("nothing to change; pass at least one of --title, --description, --priority, --due")
			}

			id, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			task, err := a.ctrl.Update(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Updated %s %s\n", shortID(task.ID), task.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD) or none")
	return cmd
}

func toggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Switch a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			task, err := a.ctrl.Toggle(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s is now %s\n", shortID(task.ID), task.Title, task.Status)
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task after confirmation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			deleted, err := a.ctrl.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintln(a.stdout, "Cancelled")
				return nil
			}
			fmt.Fprintf(a.stdout, "Deleted %s\n", shortID(id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&a.assumeYes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// resolve は一覧を読み込み、完全なIDか一意な前方一致からタスクIDを求めます。
func (a *app) resolve(cmd *cobra.Command, ref string) (string, error) {
	if err := a.ctrl.LoadAll(cmd.Context()); err != nil {
		return "", notLoggedIn(err)
	}

	var matches []string
	for _, t := range a.ctrl.Snapshot().Tasks {
		if t.ID == ref {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d tasks; use more characters", ref, len(matches))
	}
}

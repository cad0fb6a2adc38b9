package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"prism-board/board"
	"prism-board/config"
	"prism-board/domain"
)

// withSession opens the configured board, runs fn and closes the board,
// which writes the final snapshot.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, sess)
	if err := sess.close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	if errors.Is(runErr, board.ErrCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}
	return runErr
}

func formFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(fieldTitle, "t", "", "task title")
	cmd.Flags().StringP(fieldDescription, "d", "", "task description")
	cmd.Flags().String(fieldDeadline, "", "deadline as YYYY-MM-DD")
}

// presetFromFlags collects the form fields set on the command line. Flags
// left unset are asked for.
func presetFromFlags(cmd *cobra.Command) formPreset {
	preset := formPreset{}
	for _, name := range []string{fieldTitle, fieldDescription, fieldDeadline, fieldReason} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		if v, err := cmd.Flags().GetString(name); err == nil {
			preset[name] = v
		}
	}
	return preset
}

// dialogFor prompts on stderr so stdout carries only command results.
func dialogFor(cmd *cobra.Command) board.Dialog {
	yes, _ := cmd.Flags().GetBool("yes")
	return newTerminalDialog(cmd.InOrStdin(), cmd.ErrOrStderr(), presetFromFlags(cmd), yes)
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(_ context.Context, s *session) error {
				printBoard(cmd.OutOrStdout(), s.svc.Board())
				return nil
			})
		},
	}
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Plan a new task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				task, err := s.ctrl.Create(ctx, dialogFor(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Planned %s\n", task.ID)
				return nil
			})
		},
	}
	formFlags(cmd)
	return cmd
}

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit a task's title, description and deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				_, stage, ok := s.svc.Find(args[0])
				if !ok {
					return &domain.NotFoundError{TaskID: args[0], Stage: -1}
				}
				task, err := s.ctrl.Edit(ctx, dialogFor(cmd), args[0], stage)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", task.ID)
				return nil
			})
		},
	}
	formFlags(cmd)
	return cmd
}

func advanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <task-id>",
		Short: "Move a task to the next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				task, err := s.ctrl.Advance(ctx, args[0])
				if err != nil {
					return err
				}
				_, stage, _ := s.svc.Find(task.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s%s\n", task.ID, stage.Title(), overdueSuffix(task))
				return nil
			})
		},
	}
}

func returnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "return <task-id>",
		Short: "Send a task under test back to In Progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				task, err := s.ctrl.ReturnToWork(ctx, dialogFor(cmd), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Returned %s: %s\n", task.ID, *task.ReturnReason)
				return nil
			})
		},
	}
	cmd.Flags().StringP(fieldReason, "r", "", "why the task goes back")
	return cmd
}

func moveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <task-id> <stage>",
		Short: "Move a task to any stage",
		Long: `Move a task to any stage, given by number (0-3) or title.
Moving a task back to In Progress from a later stage requires --reason.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseStage(args[1])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			return withSession(cmd, func(ctx context.Context, s *session) error {
				task, err := s.svc.MoveTask(ctx, args[0], target, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s%s\n", task.ID, target.Title(), overdueSuffix(task))
				return nil
			})
		},
	}
	cmd.Flags().StringP("reason", "r", "", "return reason")
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.ctrl.Delete(ctx, dialogFor(cmd), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}

func printBoard(w io.Writer, cols []domain.Column) {
	for i, col := range cols {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", col.Title, len(col.Tasks))
		for _, t := range col.Tasks {
			fmt.Fprintf(w, "  %s  %s  due %s%s\n", t.ID, t.Title, domain.FormatDeadline(t.Deadline), overdueSuffix(t))
			if t.Description != "" {
				fmt.Fprintf(w, "      %s\n", strings.ReplaceAll(t.Description, "\n", "\n      "))
			}
			if t.HasReturnReason() {
				fmt.Fprintf(w, "      returned: %s\n", *t.ReturnReason)
			}
		}
	}
}

func overdueSuffix(t domain.Task) string {
	if t.IsOverdue {
		return "  [overdue]"
	}
	return ""
}

// parseStage accepts a stage number or a case-insensitive stage title.
func parseStage(raw string) (domain.Stage, error) {
	if n, err := strconv.Atoi(raw); err == nil && domain.Stage(n).Valid() {
		return domain.Stage(n), nil
	}
	for s := domain.StagePlanned; s < domain.StageCount; s++ {
		if strings.EqualFold(strings.ReplaceAll(s.Title(), " ", ""), strings.ReplaceAll(raw, " ", "")) {
			return s, nil
		}
	}
	return 0, &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", raw)}
}

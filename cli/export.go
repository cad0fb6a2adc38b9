package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"prism-board/domain"
)

type exportStage struct {
	Title string       `yaml:"title"`
	Tasks []exportTask `yaml:"tasks"`
}

type exportTask struct {
	ID           string    `yaml:"id"`
	Title        string    `yaml:"title"`
	Description  string    `yaml:"description,omitempty"`
	Deadline     string    `yaml:"deadline"`
	CreatedAt    time.Time `yaml:"createdAt"`
	UpdatedAt    time.Time `yaml:"updatedAt"`
	ReturnReason *string   `yaml:"returnReason,omitempty"`
	IsOverdue    bool      `yaml:"isOverdue,omitempty"`
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the board to stdout",
		Long: `Write the board to stdout. The json format is the stored snapshot
format and can be loaded back; yaml is meant for reading.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q", format)
			}
			return withSession(cmd, func(_ context.Context, s *session) error {
				if format == "yaml" {
					return writeYAML(cmd.OutOrStdout(), s.svc.Board())
				}
				data, err := s.svc.Snapshot()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), data)
				return err
			})
		},
	}
	cmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func writeYAML(w io.Writer, cols []domain.Column) error {
	out := make([]exportStage, 0, len(cols))
	for _, c := range cols {
		stage := exportStage{Title: c.Title, Tasks: make([]exportTask, 0, len(c.Tasks))}
		for _, t := range c.Tasks {
			stage.Tasks = append(stage.Tasks, exportTask{
				ID:           t.ID,
				Title:        t.Title,
				Description:  t.Description,
				Deadline:     domain.FormatDeadline(t.Deadline),
				CreatedAt:    t.CreatedAt.UTC(),
				UpdatedAt:    t.UpdatedAt.UTC(),
				ReturnReason: t.ReturnReason,
				IsOverdue:    t.IsOverdue,
			})
		}
		out = append(out, stage)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

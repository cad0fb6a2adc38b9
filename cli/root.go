package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the prism-board command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "prism-board",
		Short: "Personal four-stage kanban board",
		Long: `prism-board keeps a personal kanban board with four stages:
Planned, In Progress, Testing and Done.

Run "prism-board serve" for the HTTP API or use the task commands directly.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file (env BOARD_CONFIG)")
	flags.String("storage", "", "storage backend: file, memory, redis or table (env BOARD_STORAGE)")
	flags.String("data-dir", "", "directory for file storage (env BOARD_DATA_DIR)")
	flags.String("snapshot-key", "", "key the board is stored under (env BOARD_SNAPSHOT_KEY)")
	flags.Bool("debug", false, "enable debug logging (env DEBUG)")

	root.AddCommand(serveCmd())
	root.AddCommand(showCmd())
	root.AddCommand(addCmd())
	root.AddCommand(editCmd())
	root.AddCommand(advanceCmd())
	root.AddCommand(returnCmd())
	root.AddCommand(moveCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(exportCmd())
	return root
}

// Execute runs the command line and reports the error on stderr.
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

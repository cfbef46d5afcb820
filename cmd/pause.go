package cmd

import (
	"fmt"
	"os"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <prd-name>",
	Short: "Request a running execution pause after its current iteration",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var pauseReason string

func init() {
	pauseCmd.Flags().StringVarP(&pauseReason, "reason", "r", "", "Reason recorded with the pause")
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectRootForCommand()
	if err != nil {
		return err
	}
	if err := loop.RequestControl(projectRoot, args[0], loop.ControlRequest{Pause: true, PauseReason: pauseReason}); err != nil {
		return fmt.Errorf("failed to request pause: %w", err)
	}
	printSuccess(fmt.Sprintf("Pause requested for prd %q", args[0]))
	return nil
}

// projectRootForCommand resolves the project root from the current
// working directory, for cross-process commands that take a prd name
// rather than a loop name.
func projectRootForCommand() (string, error) {
	cwd, _ := os.Getwd()
	projectRoot, err := config.FindProjectRoot(cwd)
	if err != nil {
		return "", fmt.Errorf("not in a ralph project")
	}
	return projectRoot, nil
}

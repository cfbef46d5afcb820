package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [name]",
	Short: "Stop a running loop",
	Long:  `Stop a running AI agent loop.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	var loopName string

	if len(args) > 0 {
		loopName = args[0]
	} else {
		// Use current directory
		cwd, _ := os.Getwd()
		projectRoot, err := config.FindProjectRoot(cwd)
		if err != nil {
			return fmt.Errorf("not in a ralph project and no loop name provided")
		}
		loopName = filepath.Base(projectRoot)
	}

	// Get loop
	entry, err := config.GetLoop(loopName)
	if err != nil {
		return fmt.Errorf("failed to get loop: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("loop not found: %s", loopName)
	}

	// Check if running
	if entry.PID == 0 {
		printWarn(fmt.Sprintf("Loop %s is not running", loopName))
		return nil
	}

	printInfo(fmt.Sprintf("Stopping loop %s (PID %d)...", loopName, entry.PID))

	if err := loop.Stop(entry); err != nil {
		return fmt.Errorf("failed to stop loop: %w", err)
	}

	printSuccess(fmt.Sprintf("Stopped loop: %s", loopName))

	return nil
}

package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system dependencies",
	Long:  `Verify that all required tools are installed and configured correctly.`,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("\033[1m\033[36mChecking dependencies...\033[0m")
	fmt.Println()

	allGood := true

	if _, err := exec.LookPath("git"); err != nil {
		printError("git: not found")
		fmt.Println("  Install: https://git-scm.com/downloads")
		allGood = false
	} else {
		out, _ := exec.Command("git", "--version").Output()
		printSuccess(fmt.Sprintf("git: %s", string(out[:len(out)-1])))
	}

	cwd, _ := os.Getwd()
	projectRoot, err := config.FindProjectRoot(cwd)
	if err != nil {
		printWarn("not in a ralph project, skipping agent checks")
		fmt.Println()
		if allGood {
			printSuccess("All required dependencies installed!")
			return nil
		}
		return fmt.Errorf("some dependencies are missing")
	}

	pc, err := config.LoadProjectConfig(projectRoot)
	if err != nil || pc == nil || len(pc.Agents) == 0 {
		printWarn("no [agents.*] configured in ralph.toml")
	} else {
		for name, spec := range pc.Agents {
			if path, err := exec.LookPath(spec.Program); err != nil {
				printError(fmt.Sprintf("agent %q: %s not found", name, spec.Program))
				allGood = false
			} else {
				printSuccess(fmt.Sprintf("agent %q: found at %s", name, path))
			}
		}
	}

	fmt.Println()

	if allGood {
		printSuccess("All required dependencies installed!")
		return nil
	}

	return fmt.Errorf("some dependencies are missing")
}

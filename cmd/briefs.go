package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var listBriefsCmd = &cobra.Command{
	Use:   "list-briefs <prd-name>",
	Short: "List the iteration briefs persisted for a prd",
	Args:  cobra.ExactArgs(1),
	RunE:  runListBriefs,
}

var readBriefCmd = &cobra.Command{
	Use:   "read-brief <prd-name> <iteration>",
	Short: "Print one iteration's brief (0 for the latest brief, BRIEF.md)",
	Args:  cobra.ExactArgs(2),
	RunE:  runReadBrief,
}

func init() {
	rootCmd.AddCommand(listBriefsCmd)
	rootCmd.AddCommand(readBriefCmd)
}

func runListBriefs(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectRootForCommand()
	if err != nil {
		return err
	}

	dir := loop.BriefsDir(projectRoot, args[0])
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			printWarn(fmt.Sprintf("no briefs found for prd %q", args[0]))
			return nil
		}
		return fmt.Errorf("failed to list briefs: %w", err)
	}

	var iterations []int
	hasInitial := false
	for _, e := range entries {
		name := e.Name()
		if name == "BRIEF.md" {
			hasInitial = true
			continue
		}
		if !strings.HasPrefix(name, "BRIEF-") || !strings.HasSuffix(name, ".md") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "BRIEF-"), ".md"))
		if err != nil {
			continue
		}
		iterations = append(iterations, n)
	}
	sort.Ints(iterations)

	if hasInitial {
		fmt.Println("0 (latest)")
	}
	for _, n := range iterations {
		fmt.Println(n)
	}
	return nil
}

func runReadBrief(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectRootForCommand()
	if err != nil {
		return err
	}

	iteration, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid iteration %q: %w", args[1], err)
	}

	dir := loop.BriefsDir(projectRoot, args[0])
	name := "BRIEF.md"
	if iteration > 0 {
		name = fmt.Sprintf("BRIEF-%d.md", iteration)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no brief recorded for prd %q iteration %d", args[0], iteration)
		}
		return fmt.Errorf("failed to read brief: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/prd"
	"github.com/spf13/cobra"
)

var prdCmd = &cobra.Command{
	Use:     "prd [prd-name] [story title]",
	Aliases: []string{"p"},
	Short:   "View a PRD or add a story to it",
	Long: `View a PRD's status or add a new story.

Without a story title: shows PRD status.
With a story title: adds a new story to that PRD.

Examples:
  ralph prd feature                           # Show feature's status
  ralph prd feature "Add user authentication" # Add a story to feature
  ralph prd feature --new                     # Create a new PRD named feature
  ralph prd feature --edit                    # Edit feature's PRD json in $EDITOR`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPrd,
}

var (
	prdNew        bool
	prdEdit       bool
	prdPriority   int
	prdDeps       []string
	storyCriteria []string
)

func init() {
	prdCmd.Flags().BoolVarP(&prdNew, "new", "n", false, "Create a new PRD")
	prdCmd.Flags().BoolVarP(&prdEdit, "edit", "e", false, "Edit PRD json in $EDITOR")
	prdCmd.Flags().StringArrayVarP(&storyCriteria, "criteria", "c", nil, "Acceptance criteria (joined with newlines)")
	prdCmd.Flags().IntVar(&prdPriority, "priority", 100, "Story priority (lower runs first)")
	prdCmd.Flags().StringArrayVar(&prdDeps, "depends-on", nil, "Story ids this story depends on (can be repeated)")
	rootCmd.AddCommand(prdCmd)
}

func runPrd(cmd *cobra.Command, args []string) error {
	cwd, _ := os.Getwd()
	projectRoot, err := config.FindProjectRoot(cwd)
	if err != nil {
		return fmt.Errorf("not in a ralph project. Run 'ralph init' first")
	}
	name := args[0]
	store := prd.NewStore(filepath.Join(projectRoot, ".ralph-ui"), name)

	if prdNew {
		return createPRD(store, name)
	}
	if prdEdit {
		return editPRD(store)
	}
	if len(args) > 1 {
		return addStory(store, args[1])
	}
	return showPRD(store, name)
}

func showPRD(store *prd.Store, name string) error {
	p, err := store.Load()
	if err != nil {
		if os.IsNotExist(err) {
			printWarn(fmt.Sprintf("No PRD named %q found. Create one with 'ralph prd %s --new'", name, name))
			return nil
		}
		return fmt.Errorf("failed to load PRD: %w", err)
	}

	fmt.Printf("\033[1m\033[36mPRD: %s\033[0m (branch %s)\n", p.Title, p.Branch)
	fmt.Println()

	for _, story := range p.SortedByPriority() {
		status := " "
		if story.Passes {
			status = "✓"
		} else if p.IsReady(&story) {
			status = "→"
		}
		deps := ""
		if len(story.Dependencies) > 0 {
			deps = fmt.Sprintf(" (needs %s)", strings.Join(story.Dependencies, ", "))
		}
		fmt.Printf("[%s] %s. %s%s\n", status, story.ID, story.Title, deps)
	}

	done, total := p.CompletedCount()
	fmt.Println()
	fmt.Printf("Progress: %d/%d (%d%%)\n", done, total, p.ProgressPercent())
	if p.Blocked() {
		printWarn("Blocked: no story is currently ready")
		for id, unmet := range p.BlockedReasons() {
			if len(unmet) > 0 {
				fmt.Printf("  %s waiting on %s\n", id, strings.Join(unmet, ", "))
			}
		}
	}

	return nil
}

func createPRD(store *prd.Store, name string) error {
	if store.Exists() {
		printWarn("PRD already exists")
		fmt.Print("Overwrite? (y/N) ")
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(response)) != "y" {
			return nil
		}
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("\033[36mCreating new PRD...\033[0m")
	fmt.Println()

	fmt.Print("Title: ")
	title, _ := reader.ReadString('\n')
	title = strings.TrimSpace(title)

	fmt.Print("Branch: ")
	branch, _ := reader.ReadString('\n')
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = "main"
	}

	p := &prd.PRD{Title: title, Branch: branch}

	if err := store.Save(p); err != nil {
		return fmt.Errorf("failed to save PRD: %w", err)
	}

	printSuccess(fmt.Sprintf("PRD created at %s", store.Path()))
	printInfo(fmt.Sprintf("Add stories with 'ralph prd %s \"Story title\"'", name))

	return nil
}

func addStory(store *prd.Store, title string) error {
	p, err := store.Load()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PRD found. Create one with 'ralph prd <name> --new'")
		}
		return fmt.Errorf("failed to load PRD: %w", err)
	}

	id := strconv.Itoa(len(p.Stories) + 1)
	story := prd.Story{
		ID:           id,
		Title:        title,
		Acceptance:   strings.Join(storyCriteria, "\n"),
		Priority:     prdPriority,
		Dependencies: prdDeps,
	}
	p.Stories = append(p.Stories, story)

	if err := store.Save(p); err != nil {
		return fmt.Errorf("failed to save PRD: %w", err)
	}

	printSuccess(fmt.Sprintf("Added story %s: %s", id, title))

	return nil
}

func editPRD(store *prd.Store) error {
	path := store.Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no PRD found. Create one with 'ralph prd <name> --new'")
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

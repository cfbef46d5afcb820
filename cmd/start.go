package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/eventbus"
	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start [prd-name]",
	Aliases: []string{"run", "resume"},
	Short:   "Drive a PRD to completion",
	Long: `Start (or resume) a RalphLoop execution against a PRD.

The PRD must already exist (see 'ralph prd <prd-name> --new'). If a previous
execution was interrupted, start resumes from its last checkpoint
instead of restarting at iteration 1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cwd, _ := os.Getwd()
	projectRoot, err := config.FindProjectRoot(cwd)
	if err != nil {
		return fmt.Errorf("not in a ralph project. Run 'ralph init' first")
	}

	pc, err := config.LoadProjectConfig(projectRoot)
	if err != nil {
		return fmt.Errorf("failed to load project config: %w", err)
	}
	if pc == nil {
		return fmt.Errorf("no ralph.toml found in %s", projectRoot)
	}

	loopCfg := loop.ConfigFromProject(projectRoot, pc)
	if len(args) > 0 {
		loopCfg.PrdName = args[0]
	}
	if loopCfg.PrdName == "" {
		return fmt.Errorf("no prd name given and ralph.toml has no [ralph] prd_name set")
	}
	if len(loopCfg.Agents) == 0 {
		return fmt.Errorf("no [agents.*] entries configured in ralph.toml")
	}

	bus := eventbus.New()
	if err := bus.Start(eventbus.Config{}); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer bus.Stop()

	l := loop.New(loopCfg, clock.System{}, bus)

	loopName := filepath.Base(projectRoot) + "-" + loopCfg.PrdName
	registryEntry := &config.Loop{
		Name:        loopName,
		Path:        projectRoot,
		Project:     pc.Project.Name,
		Branch:      loopCfg.PrdName,
		Status:      "starting",
		PID:         os.Getpid(),
		Started:     time.Now().Format(time.RFC3339),
		PrdName:     loopCfg.PrdName,
		ExecutionID: l.ExecutionID(),
		BusURL:      bus.URL(),
	}
	if err := config.SetLoop(registryEntry); err != nil {
		printWarn(fmt.Sprintf("failed to register loop: %v", err))
	}

	startIteration, err := l.Init(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize loop: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		printInfo("Cancelling...")
		l.Cancel()
	}()
	defer signal.Stop(sigChan)

	printInfo(fmt.Sprintf("Starting execution %s for prd %q (iteration %d)", l.ExecutionID(), loopCfg.PrdName, startIteration))

	ctx := context.Background()
	state, runErr := l.Run(ctx, startIteration)

	registryEntry.Status = string(state.Phase)
	registryEntry.PID = 0
	registryEntry.Stopped = time.Now().Format(time.RFC3339)
	_ = config.SetLoop(registryEntry)

	if runErr != nil {
		printError(fmt.Sprintf("Execution failed: %v", runErr))
		return runErr
	}

	switch state.Phase {
	case loop.PhaseCompleted:
		printSuccess(fmt.Sprintf("PRD %q completed after %d iterations", loopCfg.PrdName, state.Iteration))
	case loop.PhasePaused:
		printInfo(fmt.Sprintf("Paused: %s", state.Reason))
	case loop.PhaseCancelled:
		printWarn("Cancelled")
	default:
		printError(fmt.Sprintf("Stopped in state %s: %s", state.Phase, state.Reason))
		return fmt.Errorf("execution ended in state %s", state.Phase)
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewlab/conductor/internal/config"
	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/log"
	"github.com/crewlab/conductor/internal/task"
	"github.com/crewlab/conductor/internal/tui"
	"github.com/crewlab/conductor/internal/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		vars    []string
		name    string
		monitor bool
	)

	cmd := &cobra.Command{
		Use:   "run <template>",
		Short: "Instantiate a workflow template and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(".")
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			variables := make(map[string]string, len(vars))
			for _, kv := range vars {
				key, value, found := strings.Cut(kv, "=")
				if !found {
					return fmt.Errorf("invalid variable %q, expected key=value", kv)
				}
				variables[key] = value
			}

			wf, ok := a.engine.CreateFromTemplate(args[0], name, variables)
			if !ok {
				return fmt.Errorf("unknown template %q", args[0])
			}
			if !a.engine.StartWorkflow(wf.ID) {
				return fmt.Errorf("workflow %s could not be started", wf.ID)
			}
			log.Get().Infof("started workflow %s (%s)", wf.ID, wf.Name)

			if monitor {
				eventCh := a.bus.SubscribeAll(0)
				go func() {
					if err := tui.Run(a.manager, a.scheduler, eventCh); err != nil {
						log.Get().Warnf("monitor exited: %v", err)
					}
				}()
			}

			if err := driveWorkflow(ctx, a, wf.ID); err != nil {
				return err
			}

			final, _ := a.engine.Workflow(wf.ID)
			a.snapshot(context.WithoutCancel(ctx))
			printSummary(final)
			if final.Status != workflow.StatusCompleted {
				return fmt.Errorf("workflow finished in state %s", final.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable, key=value (repeatable)")
	cmd.Flags().StringVar(&name, "name", "", "workflow instance name")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "show the live monitor while running")
	return cmd
}

// driveWorkflow loops assign/execute/update until the workflow reaches a
// terminal state, the context is cancelled, or no progress is possible.
func driveWorkflow(ctx context.Context, a *app, workflowID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.scheduler.AutoAssignPending()
		results := a.scheduler.ExecuteAssigned(ctx, a.cfg.Concurrency)
		a.manager.CheckTimeouts()
		a.engine.UpdateWorkflow(workflowID)

		wf, ok := a.engine.Workflow(workflowID)
		if !ok {
			return fmt.Errorf("workflow %s disappeared", workflowID)
		}
		switch wf.Status {
		case workflow.StatusCompleted, workflow.StatusFailed, workflow.StatusCancelled:
			return nil
		}

		if len(results) == 0 && stalled(wf) {
			return fmt.Errorf("workflow %s stalled: no executable steps remain", workflowID)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// stalled reports whether no step can make further progress: nothing
// materialized is still moving and nothing new can materialize.
func stalled(wf *workflow.Workflow) bool {
	for _, s := range wf.Steps {
		if s.TaskID != "" && s.Status != task.StatusCompleted {
			return false
		}
	}
	for _, s := range wf.ReadySteps() {
		if s.TaskID == "" {
			return false
		}
	}
	return true
}

func printSummary(wf *workflow.Workflow) {
	fmt.Printf("\nworkflow %s: %s\n", wf.Name, wf.Status)
	for _, s := range wf.Steps {
		line := fmt.Sprintf("  %-8s %-22s %s", s.ID, s.Type, s.Status)
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Println(line)
	}
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List registered workflow templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(".")

			// Listing templates needs no workers or store.
			bus := events.NewBus()
			defer bus.Close()
			engine := newTemplateOnlyEngine(cfg, bus)

			templates := engine.Templates()
			names := make([]string, 0, len(templates))
			for name := range templates {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				tpl := templates[name]
				fmt.Printf("%-24s %2d steps  %s\n", name, len(tpl.Steps), tpl.Description)
			}
			return nil
		},
	}
}

func newTemplateOnlyEngine(cfg *config.Config, bus *events.Bus) *workflow.Engine {
	engine := workflow.NewEngine(nil, nil, bus)
	workflow.RegisterBuiltinTemplates(engine)
	if cfg.TemplateFile != "" {
		if err := workflow.LoadTemplates(engine, cfg.TemplateFile); err != nil {
			log.Get().Warnf("loading templates: %v", err)
		}
	}
	return engine
}

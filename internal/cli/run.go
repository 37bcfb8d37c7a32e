package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/cron"
	"github.com/harun/agentforge/pkg/dashboard"
	"github.com/harun/agentforge/pkg/team"
	"github.com/spf13/cobra"
)

// Approval modes accepted by --approve.
const (
	approveAuto      = "auto"
	approveCLI       = "cli"
	approveDashboard = "dashboard"
)

var (
	runInput     string
	runDryRun    bool
	runJSON      bool
	runDashboard bool
	runPort      int
	runToken     string
	runSchedule  string
	runApprove   string
)

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Run the workflow once, or on a schedule",
	Long: `Run the workflow declared in the config file with the given input.

The final step's output is printed to stdout; the step summary and cost table
go to stderr. With --schedule the run repeats on a cron expression such as
"0 9 * * 1-5" or "@every 1h" until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "task input, available to templates as {{input}}")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate tool calls instead of executing them")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	runCmd.Flags().BoolVar(&runDashboard, "dashboard", false, "serve the live dashboard while running")
	runCmd.Flags().IntVar(&runPort, "port", 0, "dashboard port (default dashboard.port from config)")
	runCmd.Flags().StringVar(&runToken, "token", "", "bearer token required by the dashboard (default $"+tokenEnv+")")
	runCmd.Flags().StringVar(&runSchedule, "schedule", "", "cron expression for recurring runs")
	runCmd.Flags().StringVar(&runApprove, "approve", approveAuto, "approval mode: auto, cli or dashboard")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	input := runInput
	if input == "" && len(args) > 0 {
		input = args[0]
	}
	if input == "" {
		return errors.New("an input is required: pass it as an argument or with --input")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := setupEnvironment(cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []team.Option{team.WithLogger(log)}

	var deferred *control.DeferredApprover
	withDashboard := runDashboard
	switch runApprove {
	case approveAuto, "":
		opts = append(opts, team.WithApprover(control.AutoApprover{}))
	case approveCLI:
		opts = append(opts, team.WithApprover(control.NewCLIApprover(cmd.InOrStdin(), cmd.ErrOrStderr())))
	case approveDashboard:
		deferred = control.NewDeferredApprover()
		opts = append(opts, team.WithApprover(deferred))
		withDashboard = true
	default:
		return fmt.Errorf("invalid --approve value %q (want auto, cli or dashboard)", runApprove)
	}

	if withDashboard {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port = runPort
		}
		srv, err := dashboard.NewServer(dashboard.Config{
			Host:     cfg.Dashboard.Host,
			Port:     port,
			Token:    resolveToken(runToken),
			Approver: deferred,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Dashboard shutdown failed")
			}
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard: http://%s\n", srv.Addr())
		opts = append(opts, team.WithSubscriber(srv.Subscriber()))
	}

	t, err := team.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer t.Close()

	runOnce := func(ctx context.Context) error {
		var res team.RunResult
		if runDryRun {
			res = t.RunDryRun(ctx, input)
		} else {
			res = t.Run(ctx, input)
		}
		return printResult(cmd, cfg, res)
	}

	if runSchedule == "" {
		return runOnce(ctx)
	}

	runner, err := cron.New(runSchedule, runOnce, cron.WithLogger(log), cron.WithImmediate())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Scheduled %q, press Ctrl+C to stop\n", runSchedule)
	return runner.Run(ctx)
}

func printResult(cmd *cobra.Command, cfg *config.Config, res team.RunResult) error {
	out := cmd.OutOrStdout()
	if runJSON {
		data, err := res.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		if res.Output != "" {
			fmt.Fprintln(out, res.Output)
		}
		writeSummary(cmd, cfg, res)
	}

	if res.Success {
		return nil
	}
	if res.Error != "" {
		return fmt.Errorf("run failed: %s", res.Error)
	}
	return errors.New("run failed: one or more steps did not succeed")
}

func writeSummary(cmd *cobra.Command, cfg *config.Config, res team.RunResult) {
	w := cmd.ErrOrStderr()
	mode := ""
	if res.DryRun {
		mode = " [dry run]"
	}
	fmt.Fprintf(w, "\nRun %s%s finished in %s\n", res.RunID, mode, formatDuration(res.Duration))
	for _, step := range res.Steps {
		mark := "✓"
		if !step.Success {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s (%s)", mark, step.StepID, step.AgentName)
		if step.Error != "" {
			fmt.Fprintf(w, ": %s", step.Error)
		}
		fmt.Fprintln(w)
	}
	if cfg.Team.Observe.CostTracking {
		fmt.Fprintln(w)
		_ = res.Cost.WriteTable(w)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

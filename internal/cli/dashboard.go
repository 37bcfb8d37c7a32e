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
	"github.com/harun/agentforge/pkg/dashboard"
	"github.com/spf13/cobra"
)

const tokenEnv = "AGENTFORGE_DASHBOARD_TOKEN"

var (
	dashboardHost  string
	dashboardPort  int
	dashboardAuth  string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the dashboard endpoints without running a workflow",
	Long: `Serve /healthz, /metrics, /ws and the approvals API until interrupted.
Useful for checking connectivity and scrape configuration; to watch a run,
use 'agentforge run --dashboard' instead.`,
	Args: cobra.NoArgs,
	RunE: runDashboardCmd,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardHost, "host", "", "listen host (default dashboard.host from config)")
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "listen port (default dashboard.port from config)")
	dashboardCmd.Flags().StringVar(&dashboardAuth, "token", "", "bearer token required by the dashboard (default $"+tokenEnv+")")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboardCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if errors.Is(err, config.ErrNotFound) {
		cfg = config.DefaultConfig()
	} else if err != nil {
		return err
	}

	host, port := cfg.Dashboard.Host, cfg.Dashboard.Port
	if cmd.Flags().Changed("host") {
		host = dashboardHost
	}
	if cmd.Flags().Changed("port") {
		port = dashboardPort
	}

	env, err := setupEnvironment(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	srv, err := dashboard.NewServer(dashboard.Config{
		Host:   host,
		Port:   port,
		Token:  resolveToken(dashboardAuth),
		Logger: env.Logger(),
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dashboard listening on http://%s\n", srv.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func resolveToken(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(tokenEnv)
}

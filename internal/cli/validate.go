package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateWatch bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file for errors",
	Long: `Load and validate the config file, reporting every problem at once.
Branch targets that name no step are reported as warnings.
With --watch the file is re-validated whenever it changes.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "re-validate when the file changes")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	err := validateFile(cmd, path)
	if !validateWatch {
		return err
	}

	w, err := config.NewWatcher(path, zerolog.Nop())
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes, press Ctrl+C to stop\n", w.Path())
	for range changes {
		fmt.Fprintln(cmd.OutOrStdout())
		_ = validateFile(cmd, path)
	}
	return nil
}

func validateFile(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return err
	}

	if err := config.NewValidator(toolexecutor.BuiltinNames()...).Validate(cfg); err != nil {
		fmt.Fprintf(out, "✗ %s: %v\n", path, err)
		return fmt.Errorf("%s is invalid", path)
	}

	for _, warning := range cfg.Warnings() {
		fmt.Fprintf(out, "⚠ %s\n", warning)
	}
	fmt.Fprintf(out, "✓ %s is valid (%d agents, %d steps)\n", path, len(cfg.Agents), cfg.StepCount())
	return nil
}

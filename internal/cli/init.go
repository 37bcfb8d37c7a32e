package cli

import (
	"fmt"
	"path/filepath"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/internal/observability"
	"github.com/spf13/cobra"
)

var (
	initName  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a starter agents.yaml",
	Long: `Write a starter agents.yaml with a researcher and a writer agent, plus
.env.example and .gitignore, into dir (default the current directory).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", config.DefaultTeamName, "team name")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	files, err := config.WriteStarter(dir, initName, initForce)
	if err != nil {
		return err
	}

	observability.RecordConfigAudit(cmd.Context(), "init", "cli", map[string]interface{}{
		"dir":   dir,
		"files": files,
		"force": initForce,
	})

	out := cmd.OutOrStdout()
	for _, f := range files {
		fmt.Fprintf(out, "  created %s\n", f)
	}
	fmt.Fprintf(out, "\nNext steps:\n")
	fmt.Fprintf(out, "  1. Copy .env.example to .env and add your API keys\n")
	fmt.Fprintf(out, "  2. agentforge validate --config %s\n", filepath.Join(dir, config.DefaultFileName))
	fmt.Fprintf(out, "  3. agentforge run --config %s \"your topic\"\n", filepath.Join(dir, config.DefaultFileName))
	return nil
}

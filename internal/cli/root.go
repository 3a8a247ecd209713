package cli

import (
	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/cli/shell"
	"github.com/atoll-io/atoll/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "atoll",
	Short: "Atoll - symbol file management and loader tracing",
	Long: `Load, inspect and track the symbol files behind running programs.

Atoll reads ELF images and kernel symbol listings into per-process
address spaces, keeps them fresh when the files change on disk, and
answers address and name queries against them.

Key capabilities:
- Inspect symbol files: symbols, sections, line tables, static probes
- Attach to running processes and resolve their mapped addresses
- Annotate pprof profiles with symbol names from local binaries
- Trace every loader call while debugging symbol reading itself`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newAttachCmd())
	rootCmd.AddCommand(newKernelCmd())
	rootCmd.AddCommand(newSymbolizeCmd())
	rootCmd.AddCommand(shell.NewShellCmd())
	rootCmd.AddCommand(newDebugCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Atoll version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

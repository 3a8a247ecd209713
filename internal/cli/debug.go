package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/config"
)

// newDebugCmd creates the debug command group.
func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Inspect and toggle debug settings",
		Long: `Toggle persistent debug settings.

Settings:
  symfile   Log every call into a symbol file loader

Examples:
  atoll debug set symfile on
  atoll debug show symfile`,
	}

	cmd.AddCommand(newDebugSetCmd())
	cmd.AddCommand(newDebugShowCmd())
	return cmd
}

func newDebugSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <setting> <on|off>",
		Short: "Change a debug setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "symfile" {
				return fmt.Errorf("unknown debug setting %q", args[0])
			}
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}

			loader := config.NewLoader()
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Trace.LoaderCalls = on
			if err := loader.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			cmd.Printf("symfile debugging is %s\n", args[1])
			return nil
		},
	}
}

func newDebugShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [setting]",
		Short: "Show debug settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] != "symfile" {
				return fmt.Errorf("unknown debug setting %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			state := "off"
			if cfg.Trace.LoaderCalls {
				state = "on"
			}
			cmd.Printf("symfile debugging is %s\n", state)
			return nil
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

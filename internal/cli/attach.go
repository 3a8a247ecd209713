package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/cli/helpers"
	"github.com/atoll-io/atoll/internal/cli/report"
	"github.com/atoll-io/atoll/internal/loader/elfloader"
	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/sys/caps"
	"github.com/atoll-io/atoll/internal/sys/proc"
)

// newAttachCmd creates the attach command.
func newAttachCmd() *cobra.Command {
	var (
		format  string
		resolve string
		lookup  string
	)

	cmd := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Load symbols for a running process at its mapped addresses",
		Long: `Find the executable behind a running process, load its symbols and
relocate them to where the kernel mapped the binary.

Position independent executables are offset by their runtime load
address, so resolved symbols match what the process actually executes.

Examples:
  # Summarize the symbols of a running service
  atoll attach 1234

  # Resolve a sampled instruction pointer
  atoll attach 1234 --resolve 0x55e4c13d91a0

  # Find where a function landed in memory
  atoll attach 1234 --lookup main.main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			p, err := process.NewProcess(int32(pid))
			if err != nil {
				return fmt.Errorf("process %d not found: %w", pid, err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sess, log := newSession(cfg)
			defer func() { _ = sess.Close() }()

			if pid != os.Getpid() {
				if set, err := caps.Effective(); err == nil && !set.Has(caps.SysPtrace) {
					log.Warn().Int("pid", pid).Msg("reading another process usually needs CAP_SYS_PTRACE")
				}
			}
			exe, err := p.Exe()
			if err != nil {
				return fmt.Errorf("failed to find executable of pid %d: %w", pid, err)
			}
			name, err := p.Name()
			if err != nil || name == "" {
				name = fmt.Sprintf("pid-%d", pid)
			}

			space := sess.NewSpace()
			img := space.AddImage(name, exe)
			ops, err := elfloader.OpsForFile(exe)
			if err != nil {
				return err
			}
			img.SetLoaderOps(ops)
			if err := img.Load(symfile.ReadMain); err != nil {
				return fmt.Errorf("failed to load %s: %w", exe, err)
			}

			base, err := proc.LoadAddress(pid, exe)
			if err != nil {
				return fmt.Errorf("failed to find load address of pid %d: %w", pid, err)
			}
			addrs, err := elfloader.RuntimeOffsets(exe, base)
			if err != nil {
				return err
			}
			if addrs != nil {
				if err := img.ComputeOffsets(addrs); err != nil {
					return fmt.Errorf("failed to apply load address %#x: %w", base, err)
				}
			}
			log.Debug().
				Int("pid", pid).
				Str("exe", exe).
				Uint64("bias", img.LoadBias()).
				Msg("attached")

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := formatter.Format(report.BuildImageRows(space.Images()), out); err != nil {
				return err
			}

			if resolve != "" {
				addr, err := strconv.ParseUint(resolve, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid address %q", resolve)
				}
				rendered, ok := report.ResolveAddr(space.Images(), addr)
				if !ok {
					return fmt.Errorf("no symbol matches %#x", addr)
				}
				fmt.Fprintf(out, "%#x = %s\n", addr, rendered)
			}
			if lookup != "" {
				rendered, ok := report.LookupSymbol(space.Images(), lookup)
				if !ok {
					return fmt.Errorf("no symbol named %q", lookup)
				}
				fmt.Fprintln(out, rendered)
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, inspectFormats)
	cmd.Flags().StringVar(&resolve, "resolve", "", "Resolve an address in the process to a symbol")
	cmd.Flags().StringVar(&lookup, "lookup", "", "Look up a symbol and print its runtime address")

	return cmd
}

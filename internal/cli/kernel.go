package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/cli/report"
	"github.com/atoll-io/atoll/internal/loader/kallsyms"
	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/sys/caps"
	"github.com/atoll-io/atoll/internal/sys/proc"
)

// newKernelCmd creates the kernel command.
func newKernelCmd() *cobra.Command {
	var (
		path    string
		resolve string
		lookup  string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Load the running kernel's symbol table",
		Long: `Read the kernel symbol listing (kallsyms) and answer address and
name queries against it.

Kernel pointer restrictions can zero every address in the listing; in
that case run as root or relax kernel.kptr_restrict.

Examples:
  # Count the kernel's symbols
  atoll kernel

  # Resolve a crash address
  atoll kernel --resolve 0xffffffff81000000

  # Find a kernel function
  atoll kernel --lookup start_kernel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Kernel.KallsymsPath
			}

			sess, _ := newSession(cfg)
			defer func() { _ = sess.Close() }()
			space := sess.NewSpace()

			name := "kernel"
			if rel := proc.KernelRelease(); rel != "" {
				name = "kernel-" + rel
			}
			img := space.AddImage(name, path)
			img.SetLoaderOps(kallsyms.Ops(path))

			flags := symfile.ReadMain
			if force {
				flags |= symfile.ReadForce
			}
			if err := img.Load(flags); err != nil {
				if errors.Is(err, kallsyms.ErrAddressesHidden) {
					if set, cerr := caps.Effective(); cerr == nil && !set.Has(caps.Syslog) {
						return fmt.Errorf("failed to load %s (process lacks CAP_SYSLOG): %w", path, err)
					}
				}
				return fmt.Errorf("failed to load %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d symbols\n", name, img.Symbols().Len())

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

	cmd.Flags().StringVar(&path, "kallsyms", "", "Kernel symbol listing to read (default from config)")
	cmd.Flags().StringVar(&resolve, "resolve", "", "Resolve a kernel address to a symbol")
	cmd.Flags().StringVar(&lookup, "lookup", "", "Look up a kernel symbol by name")
	cmd.Flags().BoolVar(&force, "force", false, "Re-read the listing even when already loaded")

	return cmd
}

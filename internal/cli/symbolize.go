package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/symbolize"
	"github.com/atoll-io/atoll/internal/symfile"
)

// newSymbolizeCmd creates the symbolize command.
func newSymbolizeCmd() *cobra.Command {
	var (
		exes   []string
		output string
	)

	cmd := &cobra.Command{
		Use:   "symbolize <profile>",
		Short: "Annotate a pprof profile with symbols from local binaries",
		Long: `Fill in function names and line numbers for the raw addresses of a
pprof profile, using the symbol tables of the given binaries.

Locations that already carry symbol information are left untouched.

Examples:
  # Symbolize a CPU profile captured from a stripped-down collector
  atoll symbolize cpu.pb.gz --exe /usr/bin/myservice -O cpu-symbolized.pb.gz

  # Resolve across the main binary and a shared library
  atoll symbolize cpu.pb.gz --exe ./app --exe ./libplugin.so`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(exes) == 0 {
				return fmt.Errorf("at least one --exe binary is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sess, log := newSession(cfg)
			defer func() { _ = sess.Close() }()
			space := sess.NewSpace()

			for i, exe := range exes {
				var flags symfile.ReadFlags
				if i == 0 {
					flags = symfile.ReadMain
				}
				img, err := loadImage(space, exe, flags)
				if err != nil {
					return err
				}
				// Line numbers are optional, symbols alone still help.
				if err := img.EnsureLineTable(); err != nil && !errors.Is(err, symfile.ErrUnsupported) {
					log.Warn().Err(err).Str("exe", exe).Msg("no line table")
				}
			}

			prof, err := symbolize.Open(args[0])
			if err != nil {
				return err
			}

			resolved := symbolize.Annotate(sess, prof)
			log.Info().
				Int("locations", resolved).
				Int("samples", len(prof.Sample)).
				Msg("profile annotated")

			out := output
			if out == "" {
				out = args[0]
			}
			if err := symbolize.Save(out, prof); err != nil {
				return err
			}

			cmd.Printf("annotated %d locations -> %s\n", resolved, out)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exes, "exe", nil, "Binary to resolve addresses against (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "O", "", "Write the annotated profile here (default: overwrite input)")

	return cmd
}

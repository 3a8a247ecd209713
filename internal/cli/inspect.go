package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/cli/helpers"
	"github.com/atoll-io/atoll/internal/cli/report"
)

// newInspectCmd creates the inspect command.
func newInspectCmd() *cobra.Command {
	var (
		format   string
		probes   bool
		segments bool
		trace    bool
		read     helpers.ReadFlagSet
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Load symbol files and summarize what their loaders found",
		Long: `Load one or more symbol files and report the symbols, sections and
loader operations each file supports.

The first file is treated as the main program unless --main=false is
given. Use --probes to also list the static probes compiled into the
files, --segments to show how sections map onto loadable segments, and
--trace to log every loader call made while reading.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, inspectFormats); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if trace {
				cfg.Trace.LoaderCalls = true
			}

			sess, _ := newSession(cfg)
			defer func() { _ = sess.Close() }()
			space := sess.NewSpace()

			for i, path := range args {
				if _, err := loadImage(space, path, read.Flags(i == 0)); err != nil {
					return err
				}
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := formatter.Format(report.BuildImageRows(space.Images()), out); err != nil {
				return err
			}

			if segments {
				rows, err := report.BuildSegmentRows(space.Images())
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "no loadable segments found")
				} else {
					fmt.Fprintln(out)
					if err := formatter.Format(rows, out); err != nil {
						return err
					}
				}
			}
			if probes {
				rows, err := report.BuildProbeRows(space.Images())
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "no static probes found")
					return nil
				}
				fmt.Fprintln(out)
				return formatter.Format(rows, out)
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, inspectFormats)
	cmd.Flags().BoolVar(&probes, "probes", false, "List static probes found in the files")
	cmd.Flags().BoolVar(&segments, "segments", false, "List loadable segments and their section counts")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log loader calls while reading")
	read.AddFlags(cmd.Flags())

	return cmd
}

var inspectFormats = []helpers.OutputFormat{
	helpers.FormatTable,
	helpers.FormatJSON,
	helpers.FormatCSV,
}

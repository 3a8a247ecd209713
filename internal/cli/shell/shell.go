// Package shell implements the interactive symbol exploration shell.
package shell

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atoll-io/atoll/internal/cli/helpers"
	"github.com/atoll-io/atoll/internal/cli/report"
	"github.com/atoll-io/atoll/internal/config"
	apperrors "github.com/atoll-io/atoll/internal/errors"
	"github.com/atoll-io/atoll/internal/loader/elfloader"
	"github.com/atoll-io/atoll/internal/loader/kallsyms"
	"github.com/atoll-io/atoll/internal/logging"
	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/sys/proc"
	"github.com/atoll-io/atoll/internal/watch"
)

// NewShellCmd creates the shell subcommand for interactive symbol work.
func NewShellCmd() *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "shell [file...]",
		Short: "Open an interactive symbol exploration shell",
		Long: `Opens an interactive shell for loading symbol files and querying them.

Files named on the command line are loaded before the prompt appears.
When file watching is enabled, loaded files are tracked and images go
stale when their file changes on disk; reload them with .reload.

Meta-commands:
  .load FILE      - Load a symbol file
  .kernel [PATH]  - Load the kernel symbol listing
  .images         - List loaded images
  .probes [NAME]  - List static probes
  .resolve ADDR   - Resolve an address to a symbol
  .lookup NAME    - Look up a symbol by name
  .reload NAME    - Re-read symbols for an image
  .unload NAME    - Unload an image and forget it
  .trace [on|off] - Show or toggle loader call tracing
  .help           - Show help message
  .exit           - Exit shell (or Ctrl+D)
  .quit           - Exit shell

Examples:
  # Start with a binary preloaded
  atoll shell /usr/bin/myservice

  # Explore inside the shell
  atoll> .lookup main.main
  atoll> .resolve 0x4015a0
  atoll> .trace on
  atoll> .reload myservice`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if trace {
				cfg.Trace.LoaderCalls = true
			}

			log := logging.New(logging.Config{
				Level:  cfg.Logging.Level,
				Pretty: cfg.Logging.Pretty,
			})
			sess := symfile.NewSession(log)
			defer apperrors.DeferClose(log, sess, "failed to close session")
			if cfg.Trace.LoaderCalls {
				sess.SetTraceLoaderCalls(true)
			}

			sh := &shell{
				cfg:     cfg,
				log:     log,
				session: sess,
				space:   sess.NewSpace(),
				out:     cmd.OutOrStdout(),
			}

			if cfg.Watch.Enabled {
				w, err := watch.New(log, time.Duration(cfg.Watch.DebounceMS)*time.Millisecond)
				if err != nil {
					log.Warn().Err(err).Msg("file watching unavailable")
				} else {
					w.Start()
					defer apperrors.DeferClose(log, w, "failed to close watcher")
					sh.watcher = w
				}
			}

			for _, path := range args {
				if err := sh.loadFile(path); err != nil {
					fmt.Fprintf(sh.out, "Error: %v\n", err)
				}
			}

			return sh.run(loader.HistoryPath())
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Enable loader call tracing on startup")

	return cmd
}

// errExit signals a clean shell exit from a meta-command.
var errExit = errors.New("exit")

type shell struct {
	cfg     *config.Config
	log     zerolog.Logger
	session *symfile.Session
	space   *symfile.Space
	watcher *watch.Watcher
	out     io.Writer
}

// run drives the readline loop until exit.
func (sh *shell) run(historyPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "atoll> ",
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer apperrors.DeferClose(sh.log, rl, "failed to close line editor")

	fmt.Fprintln(sh.out, "Atoll symbol shell. Type '.exit' to quit, '.help' for help.")
	fmt.Fprintln(sh.out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(sh.out)
				break
			}
			return fmt.Errorf("readline error: %w", err)
		}

		if err := sh.dispatch(line); err != nil {
			if errors.Is(err, errExit) {
				break
			}
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}

	return nil
}

// dispatch handles one shell input line.
func (sh *shell) dispatch(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	if !strings.HasPrefix(parts[0], ".") {
		return fmt.Errorf("unknown input %q (commands start with '.', try .help)", parts[0])
	}

	switch parts[0] {
	case ".exit", ".quit":
		return errExit

	case ".help":
		sh.printHelp()
		return nil

	case ".load":
		if len(parts) != 2 {
			return fmt.Errorf("usage: .load FILE")
		}
		return sh.loadFile(parts[1])

	case ".kernel":
		path := sh.cfg.Kernel.KallsymsPath
		if len(parts) > 1 {
			path = parts[1]
		}
		return sh.loadKernel(path)

	case ".images":
		return sh.printImages()

	case ".probes":
		return sh.printProbes(parts[1:])

	case ".resolve":
		if len(parts) != 2 {
			return fmt.Errorf("usage: .resolve ADDR")
		}
		return sh.resolve(parts[1])

	case ".lookup":
		if len(parts) != 2 {
			return fmt.Errorf("usage: .lookup NAME")
		}
		return sh.lookup(parts[1])

	case ".reload":
		if len(parts) != 2 {
			return fmt.Errorf("usage: .reload NAME")
		}
		return sh.reload(parts[1])

	case ".unload":
		if len(parts) != 2 {
			return fmt.Errorf("usage: .unload NAME")
		}
		return sh.unload(parts[1])

	case ".trace":
		switch len(parts) {
		case 1:
			sh.showTrace()
			return nil
		case 2:
			return sh.setTrace(parts[1])
		default:
			return fmt.Errorf("usage: .trace [on|off]")
		}

	default:
		return fmt.Errorf("unknown meta-command: %s (try .help)", parts[0])
	}
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, "Meta-commands:")
	fmt.Fprintln(sh.out, "  .load FILE      - Load a symbol file")
	fmt.Fprintln(sh.out, "  .kernel [PATH]  - Load the kernel symbol listing")
	fmt.Fprintln(sh.out, "  .images         - List loaded images")
	fmt.Fprintln(sh.out, "  .probes [NAME]  - List static probes")
	fmt.Fprintln(sh.out, "  .resolve ADDR   - Resolve an address to a symbol")
	fmt.Fprintln(sh.out, "  .lookup NAME    - Look up a symbol by name")
	fmt.Fprintln(sh.out, "  .reload NAME    - Re-read symbols for an image")
	fmt.Fprintln(sh.out, "  .unload NAME    - Unload an image and forget it")
	fmt.Fprintln(sh.out, "  .trace [on|off] - Show or toggle loader call tracing")
	fmt.Fprintln(sh.out, "  .help           - Show this help message")
	fmt.Fprintln(sh.out, "  .exit           - Exit shell")
	fmt.Fprintln(sh.out, "  .quit           - Exit shell")
}

// loadFile loads an ELF symbol file into the shell's space. The first
// file loaded is treated as the main program.
func (sh *shell) loadFile(path string) error {
	name := filepath.Base(path)
	if sh.space.FindImage(name) != nil {
		return fmt.Errorf("image %s is already loaded (.unload it first)", name)
	}

	ops, err := elfloader.OpsForFile(path)
	if err != nil {
		return err
	}

	img := sh.space.AddImage(name, path)
	img.SetLoaderOps(ops)

	var flags symfile.ReadFlags
	if len(sh.space.Images()) == 1 {
		flags = symfile.ReadMain
	}
	if err := img.Load(flags); err != nil {
		_ = sh.space.RemoveImage(img)
		return err
	}

	if sh.watcher != nil {
		if err := sh.watcher.Track(img); err != nil {
			sh.log.Warn().Err(err).Str("image", name).Msg("cannot watch file")
		}
	}

	fmt.Fprintf(sh.out, "loaded %s: %d symbols\n", name, img.Symbols().Len())
	return nil
}

// loadKernel loads the kernel symbol listing as its own image.
func (sh *shell) loadKernel(path string) error {
	name := "kernel"
	if rel := proc.KernelRelease(); rel != "" {
		name = "kernel-" + rel
	}
	if sh.space.FindImage(name) != nil {
		return fmt.Errorf("image %s is already loaded (.unload it first)", name)
	}

	img := sh.space.AddImage(name, path)
	img.SetLoaderOps(kallsyms.Ops(path))
	if err := img.Load(0); err != nil {
		_ = sh.space.RemoveImage(img)
		return err
	}

	fmt.Fprintf(sh.out, "loaded %s: %d symbols\n", name, img.Symbols().Len())
	return nil
}

func (sh *shell) printImages() error {
	imgs := sh.space.Images()
	if len(imgs) == 0 {
		fmt.Fprintln(sh.out, "no images loaded (try .load FILE)")
		return nil
	}
	formatter := &helpers.TableFormatter{}
	return formatter.Format(report.BuildImageRows(imgs), sh.out)
}

func (sh *shell) printProbes(args []string) error {
	imgs := sh.space.Images()
	if len(args) == 1 {
		img := sh.space.FindImage(args[0])
		if img == nil {
			return fmt.Errorf("no image named %q", args[0])
		}
		imgs = []*symfile.Image{img}
	}

	rows, err := report.BuildProbeRows(imgs)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(sh.out, "no static probes found")
		return nil
	}
	formatter := &helpers.TableFormatter{}
	return formatter.Format(rows, sh.out)
}

func (sh *shell) resolve(arg string) error {
	addr, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q", arg)
	}
	rendered, ok := report.ResolveAddr(sh.space.Images(), addr)
	if !ok {
		return fmt.Errorf("no symbol matches %#x", addr)
	}
	fmt.Fprintf(sh.out, "%#x = %s\n", addr, rendered)
	return nil
}

func (sh *shell) lookup(name string) error {
	rendered, ok := report.LookupSymbol(sh.space.Images(), name)
	if !ok {
		return fmt.Errorf("no symbol named %q", name)
	}
	fmt.Fprintln(sh.out, rendered)
	return nil
}

func (sh *shell) reload(name string) error {
	img := sh.space.FindImage(name)
	if img == nil {
		return fmt.Errorf("no image named %q", name)
	}
	if err := img.Load(symfile.ReadForce); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "reloaded %s: %d symbols\n", name, img.Symbols().Len())
	return nil
}

func (sh *shell) unload(name string) error {
	img := sh.space.FindImage(name)
	if img == nil {
		return fmt.Errorf("no image named %q", name)
	}
	if err := img.Unload(); err != nil {
		return err
	}
	if err := sh.space.RemoveImage(img); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "unloaded %s\n", name)
	return nil
}

func (sh *shell) setTrace(arg string) error {
	switch arg {
	case "on":
		sh.session.SetTraceLoaderCalls(true)
	case "off":
		sh.session.SetTraceLoaderCalls(false)
	default:
		return fmt.Errorf("usage: .trace [on|off]")
	}
	fmt.Fprintf(sh.out, "loader call tracing is %s\n", arg)
	return nil
}

func (sh *shell) showTrace() {
	state := "off"
	if sh.session.TraceLoaderCalls() {
		state = "on"
	}
	fmt.Fprintf(sh.out, "loader call tracing is %s\n", state)
}

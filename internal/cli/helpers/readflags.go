package helpers

import (
	"github.com/spf13/pflag"

	"github.com/atoll-io/atoll/internal/symfile"
)

// ReadFlagSet holds the flag values that map onto symbol reading flags.
type ReadFlagSet struct {
	Main    bool
	Force   bool
	Verbose bool
}

// AddFlags adds symbol reading flags to a FlagSet.
func (f *ReadFlagSet) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&f.Main, "main", true, "Treat the first file as the main program")
	flags.BoolVar(&f.Force, "force", false, "Re-read symbols even when a file is already loaded")
	flags.BoolVar(&f.Verbose, "verbose-read", false, "Verbose symbol reading")
}

// Flags converts the parsed values into loader read flags. The main
// flag only applies when first is true, so multi-file commands can
// mark just their leading file.
func (f *ReadFlagSet) Flags(first bool) symfile.ReadFlags {
	var rf symfile.ReadFlags
	if f.Main && first {
		rf |= symfile.ReadMain
	}
	if f.Force {
		rf |= symfile.ReadForce
	}
	if f.Verbose {
		rf |= symfile.ReadVerbose
	}
	return rf
}

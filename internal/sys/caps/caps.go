// Package caps inspects the Linux capabilities of the current process.
// Symbol sources are guarded by them: reading another process's memory
// maps wants CAP_SYS_PTRACE, and kallsyms hides addresses from
// processes without CAP_SYSLOG.
package caps

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Capability is a Linux capability bit position (from
// include/uapi/linux/capability.h).
type Capability int

const (
	DacOverride Capability = 1  // CAP_DAC_OVERRIDE
	SysPtrace   Capability = 19 // CAP_SYS_PTRACE
	SysAdmin    Capability = 21 // CAP_SYS_ADMIN
	Syslog      Capability = 34 // CAP_SYSLOG
)

// Set is a capability bitmask as found in /proc/self/status.
type Set uint64

// Has reports whether the capability bit is set.
func (s Set) Has(c Capability) bool {
	return (uint64(s) & (1 << uint(c))) != 0
}

// Effective returns the effective capability set of the current
// process. On non-Linux platforms the empty set is returned.
func Effective() (Set, error) {
	if runtime.GOOS != "linux" {
		return 0, nil
	}
	mask, err := readBitmask("/proc/self/status", "CapEff")
	if err != nil {
		return 0, fmt.Errorf("failed to read capabilities: %w", err)
	}
	return Set(mask), nil
}

// readBitmask reads a capability bitmask from a status file.
// Format: "CapEff:\t00000000a80435fb"
func readBitmask(procStatusPath, capName string) (uint64, error) {
	//nolint:gosec // G304: Path is /proc/self/status or a test fixture.
	file, err := os.Open(procStatusPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", procStatusPath, err)
	}
	defer file.Close() // nolint:errcheck

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, capName+":") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			return 0, fmt.Errorf("invalid %s format: %s", capName, line)
		}

		bitmask, err := strconv.ParseUint(parts[1], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s bitmask: %w", capName, err)
		}

		return bitmask, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", procStatusPath, err)
	}

	return 0, fmt.Errorf("%s not found in %s", capName, procStatusPath)
}

// Package proc provides utilities for reading symbol-related information
// from the /proc filesystem on Linux.
package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultKallsymsPath is where the kernel exposes its symbol table.
const DefaultKallsymsPath = "/proc/kallsyms"

// KernelSymbol represents a kernel symbol from /proc/kallsyms.
type KernelSymbol struct {
	Address uint64
	Type    byte
	Name    string
	Module  string // Empty for core kernel, module name for loadable modules
}

// ReadKallsyms reads and parses a kallsyms-format symbol listing.
// It returns a list of symbols and the count of zero addresses found
// (indicating permission issues).
func ReadKallsyms(path string) ([]KernelSymbol, int, error) {
	//nolint:gosec // G304: Path is from /proc filesystem or test fixture.
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close() // nolint:errcheck

	return parseKallsyms(file)
}

func parseKallsyms(r io.Reader) ([]KernelSymbol, int, error) {
	var symbols []KernelSymbol
	scanner := bufio.NewScanner(r)
	zeroAddresses := 0

	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}

		// Parse address
		var addr uint64
		if _, err := fmt.Sscanf(parts[0], "%x", &addr); err != nil {
			continue
		}

		// Check for zero addresses (means insufficient permissions)
		if addr == 0 {
			zeroAddresses++
			continue
		}

		// Parse symbol type and name
		symType := parts[1][0]
		symName := parts[2]

		// Parse optional module name [module_name]
		var module string
		if len(parts) > 3 && strings.HasPrefix(parts[3], "[") && strings.HasSuffix(parts[3], "]") {
			module = strings.Trim(parts[3], "[]")
		}

		symbols = append(symbols, KernelSymbol{
			Address: addr,
			Type:    symType,
			Name:    symName,
			Module:  module,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, zeroAddresses, fmt.Errorf("failed to read kallsyms: %w", err)
	}

	return symbols, zeroAddresses, nil
}

// KernelRelease reads the kernel version from /proc/version.
func KernelRelease() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}

	// Parse version from output like "Linux version 5.15.0-xxx...".
	version := string(data)
	if idx := strings.Index(version, "Linux version "); idx >= 0 {
		version = version[idx+14:] // Skip "Linux version ".
		if idx := strings.Index(version, " "); idx >= 0 {
			version = version[:idx]
		}
		return version
	}

	return "unknown"
}

// LoadAddress reads /proc/PID/maps to find the runtime load address of the
// executable. This is needed for PIE (Position Independent Executable)
// binaries where the load address differs from the ELF file's base address.
func LoadAddress(pid int, binaryPath string) (uint64, error) {
	mapsPath := fmt.Sprintf("/proc/%d/maps", pid)
	//nolint:gosec // G304: pid is int so it's safe
	f, err := os.Open(mapsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read maps: %w", err)
	}
	defer f.Close() // nolint:errcheck

	// Resolve the actual binary path from /proc/PID/exe if needed.
	actualPath := binaryPath
	if strings.Contains(binaryPath, "/proc/") && strings.HasSuffix(binaryPath, "/exe") {
		if resolved, err := os.Readlink(binaryPath); err == nil {
			actualPath = resolved
		}
	}

	addr, err := parseMapsLoadAddress(f, actualPath)
	if err != nil {
		return 0, fmt.Errorf("no executable mapping found for %s in %s: %w", actualPath, mapsPath, err)
	}
	return addr, nil
}

// parseMapsLoadAddress finds the first executable mapping for path in a
// /proc/PID/maps listing and returns the module base it implies. The
// text mapping can sit above the base (split RELRO layouts), so the
// mapping's file offset is subtracted out.
// Format: address           perms offset  dev   inode   pathname
// Example: 555555554000-555555556000 r-xp 00000000 08:01 123456 /path/to/binary
func parseMapsLoadAddress(r io.Reader, path string) (uint64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		// Only executable mappings are interesting (r-xp).
		if !strings.Contains(line, "r-xp") {
			continue
		}

		if !strings.Contains(line, path) && !strings.HasSuffix(line, "/exe") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}

		addrRange := strings.SplitN(parts[0], "-", 2)
		if len(addrRange) != 2 {
			continue
		}

		addr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		offset, err := strconv.ParseUint(parts[2], 16, 64)
		if err != nil || offset > addr {
			continue
		}

		return addr - offset, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("mapping not present")
}

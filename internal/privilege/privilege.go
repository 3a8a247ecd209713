// Package privilege detects the invoking user when the process runs
// with elevated privileges. Attaching to other users' processes needs
// root, and files written on the way out should still belong to the
// user who typed sudo.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// UserContext is the identity of the original user behind a privileged
// invocation.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// DetectOriginalUser returns the user who started the process. Under
// sudo that is the invoking user from SUDO_USER/SUDO_UID/SUDO_GID,
// otherwise the current user.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return currentUser()
	}

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil, fmt.Errorf("SUDO_USER set but SUDO_UID or SUDO_GID missing")
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	u, err := user.Lookup(sudoUser)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", sudoUser, err)
	}

	return &UserContext{
		Username: sudoUser,
		UID:      uid,
		GID:      gid,
		HomeDir:  u.HomeDir,
	}, nil
}

func currentUser() (*UserContext, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &UserContext{
		Username: u.Username,
		UID:      os.Getuid(),
		GID:      os.Getgid(),
		HomeDir:  u.HomeDir,
	}, nil
}

// IsRoot reports whether the process runs with root privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// IsRunningUnderSudo reports whether the process was started via sudo.
func IsRunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}

// FixFileOwnership hands a file written while elevated back to the
// invoking user. Without root it is a no-op.
func FixFileOwnership(path string) error {
	if !IsRoot() {
		return nil
	}

	userCtx, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}
	if err := os.Chown(path, userCtx.UID, userCtx.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, userCtx.UID, userCtx.GID, err)
	}
	return nil
}

package condor

import "os"

// CheckNotRoot returns a *PrivilegeViolationError when euid is 0.
//
// Scheduler queries authenticate with a pool password file that root-owned
// processes cannot read in this deployment.
func CheckNotRoot(euid int) error {
	if euid == 0 {
		return &PrivilegeViolationError{EUID: euid}
	}
	return nil
}

// EnsureNotRoot checks the current process identity.
func EnsureNotRoot() error {
	return CheckNotRoot(os.Geteuid())
}

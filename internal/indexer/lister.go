package indexer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const listerBinaryName = "rclone"

var commonListerLocations = []string{
	"/usr/bin/" + listerBinaryName,
	"/usr/local/bin/" + listerBinaryName,
	"/opt/drivesync/bin/" + listerBinaryName,
}

// discoverLister locates the external lister binary in order: an explicit
// override, a bundled path under bundleEnvVar, beside the current
// executable, a list of common system locations, then PATH search.
func discoverLister(override, bundleEnvVar string) (string, error) {
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		return "", fmt.Errorf("indexer: configured lister path %s is not executable", override)
	}

	if bundleEnvVar != "" {
		if root := os.Getenv(bundleEnvVar); root != "" {
			candidate := filepath.Join(root, listerBinaryName)
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), listerBinaryName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	for _, candidate := range commonListerLocations {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(listerBinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("indexer: could not locate %q binary", listerBinaryName)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// ensureValidCWD re-establishes a process-wide invariant: a valid current
// working directory, so subprocess spawning cannot fail from a deleted
// CWD. Falls back to the user's home directory, then /tmp.
func ensureValidCWD() error {
	if _, err := os.Getwd(); err == nil {
		return nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		if chErr := os.Chdir(home); chErr == nil {
			return nil
		}
	}
	return os.Chdir(os.TempDir())
}

// buildListerCommand constructs the lsjson invocation per SPEC_FULL.md §6:
// "<lister> lsjson --recursive --fast-list '<remote>:/'" with stderr
// suppressed.
func buildListerCommand(listerPath, remoteName string) *exec.Cmd {
	target := remoteName + ":/"
	cmd := exec.Command(listerPath, "lsjson", "--recursive", "--fast-list", target)
	cmd.Stderr = nil
	return cmd
}

package version

import (
	"fmt"
	"os/exec"
	"strings"
)

// Set at build time via -ldflags.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info carries the resolved build identity shown by the version command.
type Info struct {
	Version string
	Commit  string
	Date    string
}

func (i Info) String() string {
	return fmt.Sprintf("murmur %s (commit %s, built %s)", i.Version, i.Commit, i.Date)
}

// Resolve returns the build info, appending a git-derived suffix to the
// version when the binary is run from inside a git repository whose HEAD
// is not on a release tag.
func Resolve() Info {
	return Info{
		Version: resolveVersion(Version, runGit),
		Commit:  Commit,
		Date:    Date,
	}
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := computeGitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func computeGitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}

	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	prefix := "v" + base + "-"
	if strings.HasPrefix(desc, prefix) {
		return strings.TrimPrefix(desc, prefix)
	}

	return desc
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

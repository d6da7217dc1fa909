// Package gitutil runs the handful of git commands the pipeline needs.
package gitutil

import (
	"fmt"
	"strings"

	"github.com/bitfield/script"
)

// Quote single-quotes s for script.Exec's shell-style argument splitting.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func git(dir string, args ...string) (string, error) {
	cmd := "git -C " + Quote(dir)
	for _, a := range args {
		cmd += " " + Quote(a)
	}
	out, err := script.Exec(cmd).String()
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return out, nil
}

// IsWorkTree reports whether dir is inside a git work tree.
func IsWorkTree(dir string) bool {
	out, err := git(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// TopLevel returns the work tree root containing dir.
func TopLevel(dir string) (string, error) {
	out, err := git(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Head returns the current commit hash, or "unknown".
func Head(dir string) string {
	out, err := git(dir, "rev-parse", "HEAD")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(out)
}

// Add stages paths.
func Add(dir string, paths ...string) error {
	_, err := git(dir, append([]string{"add", "--"}, paths...)...)
	return err
}

// Staged lists staged file names.
func Staged(dir string) ([]string, error) {
	out, err := git(dir, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Commit commits staged changes. It is a no-op when nothing is staged.
func Commit(dir, message string) (bool, error) {
	staged, err := Staged(dir)
	if err != nil {
		return false, err
	}
	if len(staged) == 0 {
		return false, nil
	}
	if _, err := git(dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns porcelain status output.
func Status(dir string) (string, error) {
	return git(dir, "status", "--porcelain")
}

// Version returns `git --version` output.
func Version() (string, error) {
	out, err := script.Exec("git --version").String()
	return strings.TrimSpace(out), err
}

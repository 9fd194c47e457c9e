package workspace

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Environment summarizes the host for the system prompt: OS, shell, and
// working directory.
func Environment(workDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "os: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if release := osRelease(); release != "" {
		fmt.Fprintf(&b, "distribution: %s\n", release)
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		fmt.Fprintf(&b, "shell: %s\n", shell)
	}
	fmt.Fprintf(&b, "working directory: %s", absOrSelf(workDir))
	return b.String()
}

// osRelease extracts PRETTY_NAME from /etc/os-release, if present.
func osRelease() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}

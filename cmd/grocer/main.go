package main

import (
	"os"
	"strconv"
	"strings"

	"grocer-cli/internal/cli"
)

// listIDArg returns the numeric id of a "list-<id>" token.
func listIDArg(s string) (string, bool) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "list-")
	if !ok {
		return "", false
	}
	if n, err := strconv.ParseInt(rest, 10, 64); err != nil || n <= 0 {
		return "", false
	}
	return rest, true
}

func rewriteDirectListArgs(argv []string) []string {
	// Convenience: `grocer list-<id>` works like `grocer items list --list <id>`.
	//
	// Cobra treats the first non-flag token as a subcommand, so argv is
	// rewritten before parsing. Persistent flags may come first, so this looks
	// for the first positional token rather than argv[1].
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--api":          true,
		"--format":       true,
		"--list":         true,
		"--log-file":     true,
		"--metrics-addr": true,
	}

	rewrite := func(before []string, id string, after []string) []string {
		out := make([]string, 0, len(argv)+3)
		out = append(out, before...)
		out = append(out, "items", "list", "--list", id)
		return append(out, after...)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			// Cobra stops looking for subcommands after "--", so it is dropped.
			if i+1 < len(argv) {
				if id, ok := listIDArg(argv[i+1]); ok {
					return rewrite(argv[:i], id, argv[i+2:])
				}
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if id, ok := listIDArg(a); ok {
			return rewrite(argv[:i], id, argv[i+1:])
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteDirectListArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package sandbox

import "runtime"

// windowsSubstitutions is a small table translating common Unix utility verbs
// to their closest Windows-shell equivalents. Intentionally narrow: only the
// verbs the model reaches for most often.
var windowsSubstitutions = map[string]string{
	"ls":  "dir",
	"cat": "type",
	"pwd": "cd",
	"rm":  "del",
	"cp":  "copy",
	"mv":  "move",
}

// adaptArgvForHost rewrites argv[0] using windowsSubstitutions when running on
// Windows; it is a no-op on every other host.
func adaptArgvForHost(argv []string) []string {
	if runtime.GOOS != "windows" || len(argv) == 0 {
		return argv
	}
	if repl, ok := windowsSubstitutions[argv[0]]; ok {
		out := append([]string(nil), argv...)
		out[0] = repl
		return out
	}
	return argv
}

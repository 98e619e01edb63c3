package safety

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/redeven-labs/turnengine/internal/patch"
	"github.com/redeven-labs/turnengine/internal/session"
)

var shellInterpreters = map[string]struct{}{
	"bash": {},
	"sh":   {},
	"zsh":  {},
}

// dangerousCommandPatterns is a hard-reject denylist checked before any other
// classification step: fork bombs, root-filesystem destruction, and the like
// are rejected outright regardless of policy.
var dangerousCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`),
	regexp.MustCompile(`\brm\s+-rf\s+(?:--no-preserve-root\s+)?/\s*(?:$|[;&|])`),
	regexp.MustCompile(`\bmkfs(?:\.[a-z0-9_-]+)?\b`),
	regexp.MustCompile(`\bdd\b[^\n]*\bof=/dev/`),
	regexp.MustCompile(`\b(?:shutdown|reboot|poweroff|halt)\b`),
}

func matchesDangerousPattern(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range dangerousCommandPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Classify runs the three-level approval decision procedure against req.
func Classify(req Request) Assessment {
	patchToolName := req.PatchToolName
	if patchToolName == "" {
		patchToolName = "apply_patch"
	}

	if matchesDangerousPattern(strings.Join(req.Argv, " ")) {
		return reject("matches a known destructive command pattern")
	}

	// Step 1: direct patch-tool invocation.
	if len(req.Argv) == 2 && req.Argv[0] == patchToolName {
		return classifyPatch(req.Argv[1], req.Policy, req.WritableRoots)
	}

	// Step 2: read-only allowlist against the raw argv.
	if matchesReadonlyAllowlist(req.Argv) {
		return autoApprove("matches the read-only command allowlist", allowlistGroup(req.Argv), false)
	}

	// Step 3: "<shell> -lc <script>".
	if isShellDashLC(req.Argv) {
		script := req.Argv[2]

		if body, ok := extractPatchHeredoc(script, patchToolName); ok {
			return classifyPatch(body, req.Policy, req.WritableRoots)
		}

		parsed := parseScriptSegments(script)
		if !parsed.ok || len(parsed.segments) == 0 {
			return policyFallback(req.Policy)
		}
		for _, seg := range parsed.segments {
			if !isReadonlySegment(seg) {
				return policyFallback(req.Policy)
			}
		}
		return autoApprove("shell composition of read-only segments", "Searching", false)
	}

	// Step 4/6: nothing matched; fall back on policy.
	return policyFallback(req.Policy)
}

func isShellDashLC(argv []string) bool {
	if len(argv) != 3 {
		return false
	}
	if argv[1] != "-lc" {
		return false
	}
	_, ok := shellInterpreters[filepath.Base(argv[0])]
	return ok
}

// extractPatchHeredoc recognizes "patchtool <<DELIM ... DELIM" and returns the
// heredoc body. Only a single heredoc is supported: more complex scripts fall
// through to the caller's normal script parsing.
func extractPatchHeredoc(script string, patchToolName string) (string, bool) {
	trimmed := strings.TrimSpace(script)
	if !strings.HasPrefix(trimmed, patchToolName) {
		return "", false
	}
	marker := regexp.MustCompile(`^` + regexp.QuoteMeta(patchToolName) + `\s*<<-?\s*['"]?(\w+)['"]?\s*\n`)
	loc := marker.FindStringSubmatchIndex(trimmed)
	if loc == nil {
		return "", false
	}
	delim := trimmed[loc[2]:loc[3]]
	rest := trimmed[loc[1]:]
	closing := "\n" + delim
	end := strings.Index(rest, closing)
	if end < 0 {
		if strings.HasPrefix(rest, delim) {
			return strings.TrimSuffix(rest, delim), true
		}
		return "", false
	}
	return rest[:end], true
}

// classifyPatch implements step 5 ("Patch safety").
func classifyPatch(body string, policy session.ApprovalPolicy, writableRoots []string) Assessment {
	if policy == session.PolicyFullAuto {
		return Assessment{Kind: VerdictAutoApprove, RunInSandbox: true, IsPatch: true, PatchBody: body, Reason: "full-auto policy auto-approves all patches under sandbox"}
	}
	if policy == session.PolicySuggest {
		return Assessment{Kind: VerdictAskUser, IsPatch: true, PatchBody: body}
	}

	parsed, err := patch.Parse(body)
	if err != nil {
		return Assessment{Kind: VerdictAskUser, IsPatch: true, PatchBody: body}
	}
	needed := parsed.IdentifyFilesNeeded()
	added := parsed.IdentifyFilesAdded()
	if allPathsContained(needed, writableRoots) && allPathsContained(added, writableRoots) {
		return Assessment{Kind: VerdictAutoApprove, RunInSandbox: false, IsPatch: true, PatchBody: body, Reason: "patch paths are contained within a writable root"}
	}
	return Assessment{Kind: VerdictAskUser, IsPatch: true, PatchBody: body}
}

// policyFallback implements step 6.
func policyFallback(policy session.ApprovalPolicy) Assessment {
	if policy == session.PolicyFullAuto {
		return autoApprove("full-auto policy auto-approves unclassified commands under sandbox", "", true)
	}
	return askUser()
}

func allowlistGroup(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	switch strings.ToLower(argv[0]) {
	case "rg", "grep", "find":
		return "Searching"
	case "cat", "head", "tail", "sed":
		return "Reading"
	case "ls", "pwd", "cd", "which":
		return "Inspecting"
	default:
		return "Running"
	}
}

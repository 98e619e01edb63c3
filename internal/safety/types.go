// Package safety implements the three-level approval-policy classifier that
// decides whether a shell command or patch runs unsandboxed, runs sandboxed,
// is sent back to the user for approval, or is rejected outright.
package safety

import "github.com/redeven-labs/turnengine/internal/session"

// VerdictKind discriminates the Assessment tagged variant.
type VerdictKind string

const (
	VerdictAutoApprove VerdictKind = "auto-approve"
	VerdictAskUser     VerdictKind = "ask-user"
	VerdictReject      VerdictKind = "reject"
)

// Assessment is the classifier's decision for one candidate invocation.
type Assessment struct {
	Kind         VerdictKind
	Reason       string
	Group        string
	RunInSandbox bool
	PatchBody    string // set when the candidate is (or contains) a patch blob
	IsPatch      bool
}

func autoApprove(reason, group string, sandbox bool) Assessment {
	return Assessment{Kind: VerdictAutoApprove, Reason: reason, Group: group, RunInSandbox: sandbox}
}

func askUser() Assessment {
	return Assessment{Kind: VerdictAskUser}
}

func reject(reason string) Assessment {
	return Assessment{Kind: VerdictReject, Reason: reason}
}

// Request carries everything the classifier needs to reach a verdict.
type Request struct {
	Argv          []string
	Policy        session.ApprovalPolicy
	WritableRoots []string
	// PatchToolName is the literal tool name (e.g. "apply_patch") recognized in
	// step 1 of the algorithm: argv[0] == PatchToolName with exactly two
	// elements treats argv[1] as a patch blob.
	PatchToolName string
}

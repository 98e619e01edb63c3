// Package toolexec glues a parsed shell-tool function call to the safety
// classifier, the sandbox executor, and the patch engine, and shapes the
// result back into a function_call_output item.
package toolexec

import "time"

const (
	ShellToolName      = "shell"
	ShellToolAliasName = "container.exec"
)

// rawArgs mirrors the wire shape of the shell tool's JSON arguments:
// command/workdir/timeout.
type rawArgs struct {
	Command []string `mapstructure:"command"`
	Workdir string   `mapstructure:"workdir"`
	Timeout *int64   `mapstructure:"timeout"`
}

// ExecArgs is the normalized tool-call payload the handler operates on.
type ExecArgs struct {
	Argv    []string
	Workdir string
	Timeout time.Duration
}

// ApprovalDecision is the user's answer to get_command_confirmation.
type ApprovalDecision string

const (
	DecisionYes        ApprovalDecision = "YES"
	DecisionYesAlways  ApprovalDecision = "YES_ALWAYS"
	DecisionExplain    ApprovalDecision = "EXPLAIN"
	DecisionNoContinue ApprovalDecision = "NO_CONTINUE"
	DecisionNoExit     ApprovalDecision = "NO_EXIT"
)

// ConfirmationRequest is passed to get_command_confirmation.
type ConfirmationRequest struct {
	Argv        []string
	IsPatch     bool
	PatchBody   string
	Explanation string // populated only on the round following an EXPLAIN answer
}

// ConfirmationResult is the caller's answer.
type ConfirmationResult struct {
	Decision    ApprovalDecision
	CustomDeny  string
	Explanation string // read only from the extra call made right after an EXPLAIN answer
}

// ConfirmationFunc implements get_command_confirmation. The handler calls it
// once; after every EXPLAIN answer it calls it twice more, first to obtain an
// explanation (only that result's Explanation is used, its Decision is
// ignored) and then to ask again with the explanation attached, until a
// terminal decision comes back.
type ConfirmationFunc func(req ConfirmationRequest) (ConfirmationResult, error)

// maxExplainRounds bounds the EXPLAIN<->ask loop against a misbehaving
// confirmation callback that always answers EXPLAIN.
const maxExplainRounds = 5

// Package turn drives the bidirectional streaming turn loop: stage model
// output for cancel-safe delivery, satisfy the function-call/
// function-call-output contract across turn boundaries, run approved tool
// calls through the exec handler, and classify provider errors into a fixed
// retry/terminal-message taxonomy.
package turn

import (
	"github.com/redeven-labs/turnengine/internal/provider"
	"github.com/redeven-labs/turnengine/internal/session"
	"github.com/redeven-labs/turnengine/internal/toolexec"
)

// ShellToolDefinition is the tool registered with the model.
var ShellToolDefinition = provider.ToolDef{
	Name:        "shell",
	Description: "Runs a shell command, and returns its output.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"workdir": map[string]any{"type": "string"},
			"timeout": map[string]any{"type": "number"},
		},
		"required":             []string{"command"},
		"additionalProperties": false,
	},
	Strict: false,
}

// basePreamble is the fixed instructions prefix merged ahead of caller
// instructions on every request.
const basePreamble = "You are an interactive terminal coding assistant. Use the shell tool to inspect and modify the workspace; prefer the smallest change that satisfies the user's request."

// Callbacks is the five-port capability bundle the UI boundary implements,
// expressed as a record of function values so tests can substitute a
// deterministic recorder.
type Callbacks struct {
	OnItem           func(session.Item)
	OnLoading        func(bool)
	OnLastResponseID func(string)
	Confirm          toolexec.ConfirmationFunc

	// OnFault reports EngineFault invariant violations without crashing the
	// host process. Optional;
	// defaults to a no-op that logs via slog.
	OnFault func(error)
}

// Config is the engine's construction-time configuration beyond the
// callbacks: model name, approval policy, optional instructions, writable
// roots.
type Config struct {
	Model         string
	Policy        session.ApprovalPolicy
	Instructions  string
	WritableRoots []string
}

func mergedInstructions(caller string) string {
	if caller == "" {
		return basePreamble
	}
	return basePreamble + "\n\n" + caller
}

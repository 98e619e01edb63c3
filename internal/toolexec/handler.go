package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/redeven-labs/turnengine/internal/patch"
	"github.com/redeven-labs/turnengine/internal/safety"
	"github.com/redeven-labs/turnengine/internal/sandbox"
	"github.com/redeven-labs/turnengine/internal/session"
)

// Handler dispatches shell-tool function calls to the safety classifier and,
// depending on its verdict, the sandbox executor or the patch engine.
type Handler struct {
	Executor      *sandbox.Executor
	Confirm       ConfirmationFunc
	PatchToolName string
	ExtraRoots    []string // caller-supplied additional writable roots
}

// NewHandler wires a Handler with sensible defaults (an executor with no
// state and the literal patch-tool name "apply_patch").
func NewHandler(confirm ConfirmationFunc, extraRoots ...string) *Handler {
	return &Handler{
		Executor:      sandbox.NewExecutor(),
		Confirm:       confirm,
		PatchToolName: "apply_patch",
		ExtraRoots:    extraRoots,
	}
}

// terminalCancellation is returned by Handle when the user answers NO_EXIT;
// callers should treat it as a signal to end the turn.
type terminalCancellation struct{ reason string }

func (e *terminalCancellation) Error() string { return e.reason }

// IsTerminalCancellation reports whether err signals a NO_EXIT answer.
func IsTerminalCancellation(err error) bool {
	_, ok := err.(*terminalCancellation)
	return ok
}

// Handle normalizes, classifies, and executes one function call, returning
// the function_call_output item that answers callID. Any
// additional synthetic items produced along the way are returned after it.
func (h *Handler) Handle(ctx context.Context, policy session.ApprovalPolicy, callID, toolName, argsJSON string) ([]session.Item, error) {
	if toolName != ShellToolName && toolName != ShellToolAliasName {
		return []session.Item{h.output(callID, fmt.Sprintf("unrecognized tool: %s", toolName), 1, 0)}, nil
	}

	args, ok := h.normalizeArgs(argsJSON)
	if !ok {
		return []session.Item{h.output(callID, fmt.Sprintf("invalid arguments: %s", argsJSON), 1, 0)}, nil
	}

	roots := h.writableRoots(args.Workdir)
	assessment := safety.Classify(safety.Request{
		Argv:          args.Argv,
		Policy:        policy,
		WritableRoots: roots,
		PatchToolName: h.PatchToolName,
	})

	return h.dispatch(ctx, callID, args, roots, assessment)
}

func (h *Handler) dispatch(ctx context.Context, callID string, args ExecArgs, roots []string, assessment safety.Assessment) ([]session.Item, error) {
	switch assessment.Kind {
	case safety.VerdictReject:
		return []session.Item{h.output(callID, assessment.Reason, 1, 0)}, nil

	case safety.VerdictAutoApprove:
		return h.execute(ctx, callID, args, roots, assessment)

	case safety.VerdictAskUser:
		return h.askUser(ctx, callID, args, roots, assessment)

	default:
		return []session.Item{h.output(callID, "unknown safety verdict", 1, 0)}, nil
	}
}

func (h *Handler) askUser(ctx context.Context, callID string, args ExecArgs, roots []string, assessment safety.Assessment) ([]session.Item, error) {
	if h.Confirm == nil {
		return []session.Item{h.output(callID, "command requires approval but no confirmation channel is wired", 1, 0)}, nil
	}
	req := ConfirmationRequest{Argv: args.Argv, IsPatch: assessment.IsPatch, PatchBody: assessment.PatchBody}

	for round := 0; round < maxExplainRounds; round++ {
		result, err := h.Confirm(req)
		if err != nil {
			return nil, err
		}
		switch result.Decision {
		case DecisionYes, DecisionYesAlways:
			approved := assessment
			approved.Kind = safety.VerdictAutoApprove
			approved.RunInSandbox = false
			return h.execute(ctx, callID, args, roots, approved)
		case DecisionExplain:
			explanation, err := h.explain(req)
			if err != nil {
				return nil, err
			}
			req.Explanation = explanation
			continue
		case DecisionNoContinue:
			msg := strings.TrimSpace(result.CustomDeny)
			if msg == "" {
				msg = "command denied by user"
			}
			return []session.Item{h.output(callID, msg, 1, 0)}, nil
		case DecisionNoExit:
			return nil, &terminalCancellation{reason: "user ended the session from a command confirmation"}
		default:
			return []session.Item{h.output(callID, fmt.Sprintf("unrecognized confirmation decision: %s", result.Decision), 1, 0)}, nil
		}
	}
	return []session.Item{h.output(callID, "confirmation exceeded explanation round limit", 1, 0)}, nil
}

// explain re-invokes Confirm with the current request (carrying the previous
// round's explanation, if any), treating the callback itself as the source of the explanation text: a
// production wiring would route this to a distinct "explain" surface, but the
// engine's contract only names one callback (get_command_confirmation), so an
// EXPLAIN round and an explanation round share it.
func (h *Handler) explain(req ConfirmationRequest) (string, error) {
	result, err := h.Confirm(req)
	if err != nil {
		return "", err
	}
	return result.Explanation, nil
}

func (h *Handler) execute(ctx context.Context, callID string, args ExecArgs, roots []string, assessment safety.Assessment) ([]session.Item, error) {
	if assessment.IsPatch {
		return h.executePatch(callID, assessment.PatchBody)
	}

	variant := sandbox.VariantRaw
	if assessment.RunInSandbox {
		variant = sandbox.DefaultVariant()
	}

	result := h.Executor.Exec(ctx, sandbox.ExecInput{
		Argv:            args.Argv,
		WorkDir:         args.Workdir,
		Timeout:         args.Timeout,
		Variant:         variant,
		WritableRoots:   roots,
		NetworkDisabled: assessment.RunInSandbox,
	})

	out := result.Stdout
	if result.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += result.Stderr
	}
	return []session.Item{h.output(callID, out, result.ExitCode, result.Duration)}, nil
}

func (h *Handler) executePatch(callID, body string) ([]session.Item, error) {
	p, err := patch.Parse(body)
	if err != nil {
		return []session.Item{h.output(callID, fmt.Sprintf("invalid patch: %s", err.Error()), 1, 0)}, nil
	}
	read, write, del := patch.OSFileOps()
	summary, err := patch.Apply(p, read, write, del)
	if err != nil {
		return []session.Item{h.output(callID, err.Error(), 1, 0)}, nil
	}
	return []session.Item{h.output(callID, summary, 0, 0)}, nil
}

func (h *Handler) output(callID, output string, exitCode int, duration time.Duration) session.Item {
	return session.NewFunctionCallOutput(callID, output, exitCode, duration)
}

// normalizeArgs parses argsJSON into an ExecArgs, rejecting malformed JSON
// without ever returning a Go error — the caller always gets a usable item.
func (h *Handler) normalizeArgs(argsJSON string) (ExecArgs, bool) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &generic); err != nil {
		return ExecArgs{}, false
	}
	var raw rawArgs
	if err := mapstructure.Decode(generic, &raw); err != nil {
		return ExecArgs{}, false
	}
	if len(raw.Command) == 0 {
		return ExecArgs{}, false
	}
	timeout := time.Duration(0)
	if raw.Timeout != nil {
		timeout = time.Duration(*raw.Timeout) * time.Millisecond
	}
	return ExecArgs{Argv: raw.Command, Workdir: raw.Workdir, Timeout: timeout}, true
}

// writableRoots computes the default writable-root set: the process working
// directory and the system temp directory, plus caller-supplied extras and
// the command's own workdir, all absolutized.
func (h *Handler) writableRoots(workdir string) []string {
	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	roots = append(roots, os.TempDir())
	roots = append(roots, h.ExtraRoots...)
	if strings.TrimSpace(workdir) != "" {
		roots = append(roots, workdir)
	}

	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

package turn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redeven-labs/turnengine/internal/provider"
	"github.com/redeven-labs/turnengine/internal/session"
	"github.com/redeven-labs/turnengine/internal/toolexec"
)

// Engine drives one UI session's turn loop. One instance is created per UI session; Run is not safe to call
// concurrently with itself — cancel() plus a new Run() is the supported
// pattern.
type Engine struct {
	cfg       Config
	state     *session.State
	provider  provider.Provider
	handler   *toolexec.Handler
	callbacks Callbacks
	log       *slog.Logger

	mu         sync.Mutex
	running    bool
	execCancel context.CancelFunc
}

// New constructs a Turn Engine instance. logger defaults to slog.Default()
// when nil.
func New(cfg Config, prov provider.Provider, handler *toolexec.Handler, callbacks Callbacks, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if callbacks.OnFault == nil {
		callbacks.OnFault = func(err error) { logger.Error("engine fault", "error", err) }
	}
	if handler != nil {
		handler.ExtraRoots = append(handler.ExtraRoots, cfg.WritableRoots...)
		if handler.Confirm == nil {
			handler.Confirm = callbacks.Confirm
		}
	}
	return &Engine{
		cfg:       cfg,
		state:     session.New(cfg.Policy, cfg.Model, cfg.WritableRoots),
		provider:  prov,
		handler:   handler,
		callbacks: callbacks,
		log:       logger,
	}
}

// State exposes the per-instance session state (policy, writable roots,
// pending aborts) for callers that need to inspect or persist it.
func (e *Engine) State() *session.State { return e.state }

// ErrAlreadyRunning is returned by Run when a prior Run on the same
// instance has not yet returned.
var ErrAlreadyRunning = fmt.Errorf("turn: a run is already in progress on this engine")

// ErrTerminated is returned by Run once Terminate has been called.
var ErrTerminated = fmt.Errorf("turn: engine instance has been terminated")

// Run drives one full turn to completion: bumps the generation, drains and
// synthesizes answers for any pending aborts, then loops the streamed
// request/response/tool-exec cycle until the model emits no further tool
// calls or a terminal condition ends the run early.
// Run never returns a non-nil error for model, retry, or cancellation
// outcomes — those surface as staged system messages or silent aborts;
// only programming misuse (concurrent Run, use after Terminate) returns
// an error.
func (e *Engine) Run(ctx context.Context, input []session.Item, previousResponseID string) error {
	if e.state.Terminated() {
		return ErrTerminated
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	runCtx, execCancel := context.WithCancel(ctx)
	e.execCancel = execCancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.execCancel = nil
		e.mu.Unlock()
		execCancel()
	}()

	generation := e.state.BumpGeneration()
	e.state.SetCanceled(false)
	turnStart := time.Now()
	staging := newStagingBuffer(e.state, generation, e.callbacks.OnItem)
	e.logLifecycle("turn.start", "generation", generation, "model", e.cfg.Model)

	turnInput := append([]session.Item(nil), input...)
	if pending := e.state.DrainPendingAborts(); len(pending) > 0 {
		synth := make([]session.Item, 0, len(pending))
		for _, id := range pending {
			synth = append(synth, session.NewAbortedOutput(id))
		}
		turnInput = append(synth, turnInput...)
		e.logLifecycle("turn.drain_pending_aborts", "count", len(pending))
	}

	e.callbacks.OnLoading(true)
	responseID := previousResponseID

	for len(turnInput) > 0 {
		if e.state.Canceled() || runCtx.Err() != nil {
			break
		}
		for _, it := range turnInput {
			staging.stage(it)
		}

		result, done := e.runStep(runCtx, generation, turnStart, staging, responseID, turnInput)
		if done {
			break
		}
		turnInput = result.nextInput
		if result.responseID != "" {
			responseID = result.responseID
			e.state.SetLastResponseID(responseID)
			e.callbacks.OnLastResponseID(responseID)
		}
	}

	staging.flush()
	e.callbacks.OnLoading(false)
	e.logLifecycle("turn.done", "generation", generation)
	return nil
}

// Cancel invalidates the current turn. It never clears pendingAborts — the conversational contract
// requires them to survive into the next Run.
func (e *Engine) Cancel() {
	e.mu.Lock()
	execCancel := e.execCancel
	e.mu.Unlock()

	if execCancel != nil {
		execCancel()
	}
	e.state.SetCanceled(true)
	if !e.state.HasPendingAborts() {
		e.state.ClearLastResponseID()
	}
	e.state.BumpGeneration()
	e.callbacks.OnLoading(false)
	e.logLifecycle("turn.cancel")
}

// Terminate makes the instance permanently unusable; subsequent Run calls
// fail with ErrTerminated.
func (e *Engine) Terminate() {
	e.mu.Lock()
	execCancel := e.execCancel
	e.mu.Unlock()
	if execCancel != nil {
		execCancel()
	}
	e.state.Terminate()
	e.logLifecycle("turn.terminate")
}

// stepResult is what one streamed request/response cycle hands back to the
// outer Run loop.
type stepResult struct {
	nextInput  []session.Item
	responseID string
}

// runStep opens one streamed request, retries it on classified
// transient/rate-limit failures, and on success runs the fallback processor
// over the completed response's output to compute the next turn_input. The
// bool return is true when the run should end now (terminal provider error,
// cancellation, or NO_EXIT).
func (e *Engine) runStep(ctx context.Context, generation uint64, turnStart time.Time, staging *stagingBuffer, previousResponseID string, turnInput []session.Item) (stepResult, bool) {
	req := provider.Request{
		Model:              e.cfg.Model,
		Instructions:       mergedInstructions(e.cfg.Instructions),
		PreviousResponseID: previousResponseID,
		Input:              turnInput,
		Tools:              []provider.ToolDef{ShellToolDefinition},
	}

	var (
		stagedLive    int
		functionCalls []session.Item
		completed     bool
		output        []session.Item
		responseID    string
	)

	onEvent := func(ev provider.Event) {
		switch ev.Type {
		case provider.EventOutputItemDone:
			if ev.Item.Kind == session.ItemKindFunctionCall {
				e.state.AddPendingAbort(ev.Item.CallID)
				functionCalls = append(functionCalls, ev.Item)
				return
			}
			item := ev.Item
			if item.Kind == session.ItemKindReasoningSummary {
				d := time.Since(turnStart)
				item.SummaryDuration = &d
			}
			staging.stage(item)
			stagedLive++
		case provider.EventCompleted:
			completed = true
			output = ev.Output
			responseID = ev.ResponseID
		}
	}

	base := retryBase()
	for attempt := 1; ; attempt++ {
		err := e.provider.StreamTurn(ctx, req, onEvent)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return stepResult{}, true
		}

		ce, ok := err.(*provider.ClassifiedError)
		if !ok {
			ce = &provider.ClassifiedError{Kind: provider.KindTransient, Message: err.Error(), Err: err}
		}
		e.logLifecycle("turn.provider_error", "attempt", attempt, "kind", ce.Kind, "message", ce.Message)

		terminalMsg, retryAfter, terminal := e.classifyRetry(ce, attempt, base)
		if terminalMsg != "" {
			e.stageSystem(staging, terminalMsg)
			return stepResult{}, true
		}
		if terminal {
			return stepResult{}, true
		}
		if !e.sleepOrCanceled(ctx, retryAfter) {
			return stepResult{}, true
		}
	}

	if !completed {
		fault := &session.EngineFault{Code: "missing_response_completed", Message: "provider stream ended without a response.completed event", CorrelationID: uuid.NewString()}
		e.callbacks.OnFault(fault)
		return stepResult{}, true
	}

	nextInput, haltForExit := e.runFallbackProcessor(ctx, staging, stagedLive, output, functionCalls)
	if haltForExit {
		return stepResult{}, true
	}
	return stepResult{nextInput: nextInput, responseID: responseID}, false
}

// classifyRetry decides what to do with one failed attempt: a non-empty
// terminalMsg means stage it and end the run; terminal=true
// with an empty message means end the run silently (reserved for future
// kinds); otherwise the caller should sleep retryAfter and retry.
func (e *Engine) classifyRetry(ce *provider.ClassifiedError, attempt int, base time.Duration) (terminalMsg string, retryAfter time.Duration, terminal bool) {
	switch ce.Kind {
	case provider.KindRateLimit:
		if attempt >= maxStreamAttempts {
			return fmt.Sprintf("Rate limit reached. Error details: status=%d code=%s type=%s message=%s", ce.StatusCode, ce.Code, ce.Type, ce.Message), 0, true
		}
		wait := ce.RetryAfter
		if wait <= 0 {
			wait = backoffDuration(base, attempt)
		}
		return "", wait, false
	case provider.KindTransient, provider.KindUnknown:
		if attempt >= maxStreamAttempts {
			return fmt.Sprintf("I'm having trouble reaching the model after %d attempts. Last error: %s", attempt, ce.Message), 0, true
		}
		return "", backoffDuration(base, attempt), false
	case provider.KindContextOverflow:
		return "This conversation is too large for the model's context window. Try /clear or switch to a model with a larger context.", 0, true
	case provider.KindModelNotFound:
		return fmt.Sprintf("The model %q was not found. Check the model name and try again.", e.cfg.Model), 0, true
	case provider.KindClientError:
		return fmt.Sprintf("The model provider rejected the request (request_id=%s): %s", ce.RequestID, ce.Message), 0, true
	default:
		return ce.Message, 0, true
	}
}

// runFallbackProcessor stages any output item not already staged live during
// streaming, then dispatches every observed
// function call to the exec handler, producing the function_call_output
// items (plus any synthetic items the exec path returns) that become the
// next turn_input. haltForExit is true when a NO_EXIT confirmation answer
// ends the run.
func (e *Engine) runFallbackProcessor(ctx context.Context, staging *stagingBuffer, alreadyStaged int, output []session.Item, functionCalls []session.Item) (nextInput []session.Item, haltForExit bool) {
	skip := alreadyStaged
	for _, item := range output {
		if item.Kind == session.ItemKindFunctionCall {
			staging.stage(item)
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		staging.stage(item)
	}

	seen := make(map[string]bool, len(functionCalls))
	for _, call := range functionCalls {
		if seen[call.CallID] {
			fault := &session.EngineFault{Code: "duplicate_call_id", Message: "provider emitted two function calls with the same call-id in one turn", CorrelationID: uuid.NewString()}
			e.callbacks.OnFault(fault)
			continue
		}
		seen[call.CallID] = true

		items, err := e.handler.Handle(ctx, e.cfg.Policy, call.CallID, call.ToolName, call.ArgsJSON)
		if err != nil {
			if toolexec.IsTerminalCancellation(err) {
				e.state.RemovePendingAbort(call.CallID)
				return nil, true
			}
			fault := &session.EngineFault{Code: "exec_handler_error", Message: err.Error(), CorrelationID: uuid.NewString()}
			e.callbacks.OnFault(fault)
			continue
		}
		e.state.RemovePendingAbort(call.CallID)
		nextInput = append(nextInput, items...)
	}
	return nextInput, false
}

func (e *Engine) stageSystem(staging *stagingBuffer, text string) {
	staging.stage(session.NewMessage(session.RoleSystem, session.ContentPart{Type: "text", Text: text}))
}

// sleepOrCanceled waits d, polling for cancellation at the start and end of
// the wait. Returns false if the wait was cut short.
func (e *Engine) sleepOrCanceled(ctx context.Context, d time.Duration) bool {
	if e.state.Canceled() {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !e.state.Canceled() && ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// logLifecycle logs at Debug when DEBUG is set, Info otherwise. Never logs command output bodies.
func (e *Engine) logLifecycle(msg string, args ...any) {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	e.log.Log(context.Background(), level, msg, args...)
}

package session

import (
	"fmt"
	"sync"
)

// EngineFault is a programming-error invariant violation. It is fatal to the current run but must never tear down the host
// process — callers report it through a dedicated channel instead of panicking.
type EngineFault struct {
	Code          string
	Message       string
	CorrelationID string
}

func (f *EngineFault) Error() string {
	return fmt.Sprintf("engine fault [%s] %s (correlation_id=%s)", f.Code, f.Message, f.CorrelationID)
}

// State is the per-engine-instance session state owned exclusively by a single
// Turn Engine instance: approval policy, writable roots,
// pending aborts, last-response cursor, and the model name. It is created once per
// UI session and mutated only by the owning engine's single logical task.
type State struct {
	mu sync.Mutex

	Policy        ApprovalPolicy
	ModelName     string
	WritableRoots []string

	pendingAborts  map[string]struct{}
	lastResponseID string
	generation     uint64
	terminated     bool
	canceled       bool
}

// New creates session state for one engine instance.
func New(policy ApprovalPolicy, modelName string, writableRoots []string) *State {
	return &State{
		Policy:        policy,
		ModelName:     modelName,
		WritableRoots: append([]string(nil), writableRoots...),
		pendingAborts: make(map[string]struct{}),
	}
}

// AddPendingAbort records a call-id emitted by the model but not yet answered.
func (s *State) AddPendingAbort(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAborts[callID] = struct{}{}
}

// DrainPendingAborts returns and clears all pending call-ids, in no particular
// order. Idempotent: a second drain with nothing added in between returns nil.
func (s *State) DrainPendingAborts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pendingAborts) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.pendingAborts))
	for id := range s.pendingAborts {
		out = append(out, id)
	}
	s.pendingAborts = make(map[string]struct{})
	return out
}

// RemovePendingAbort clears a single call-id once it has been answered
// normally (not via the synthetic-abort path). A no-op if the id is not
// tracked.
func (s *State) RemovePendingAbort(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingAborts, callID)
}

// HasPendingAborts reports whether any call-id is still unanswered.
func (s *State) HasPendingAborts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingAborts) > 0
}

// LastResponseID returns the opaque cursor used to chain turns.
func (s *State) LastResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponseID
}

// SetLastResponseID records the cursor returned by the model for the next turn.
func (s *State) SetLastResponseID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponseID = id
}

// ClearLastResponseID resets the cursor to a clean turn boundary, used by cancel()
// when there are no pending aborts to carry forward.
func (s *State) ClearLastResponseID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponseID = ""
}

// Generation returns the current generation counter.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// BumpGeneration increments and returns the new generation. Every deferred callback
// must capture the value returned here at scheduling time.
func (s *State) BumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// IsCurrentGeneration reports whether captured equals the live generation — the
// fencing check every suspension point and deferred callback must perform.
func (s *State) IsCurrentGeneration(captured uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return captured == s.generation
}

// SetCanceled raises or clears the canceled flag polled at every suspension
// point.
func (s *State) SetCanceled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = v
}

// Canceled reports whether cancel() has been called for the current turn.
func (s *State) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// IsLive is the fencing check every deferred callback performs before
// delivering an item: the captured generation must
// still be current, the turn must not have been canceled, and the instance
// must not have been terminated.
func (s *State) IsLive(captured uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return captured == s.generation && !s.canceled && !s.terminated
}

// Terminate marks the instance unusable; subsequent Run calls must fail.
func (s *State) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
}

// Terminated reports whether Terminate has been called.
func (s *State) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

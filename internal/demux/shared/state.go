// Package shared holds the pieces every concrete demuxer in internal/demux
// reuses: the Constructed → Parsed → Reading ⇄ Seeking → Closed state
// machine from spec.md §4.4, and small helpers (error-threshold counters,
// frame index) common to the format-specific packages.
package shared

import (
	"fmt"
	"sync"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// StateMachine guards the Demuxer state transitions behind a single mutex,
// generalized from the teacher's handshake.Handshake FSM: each transition
// method validates the current state, returns a typed error on a violation,
// and otherwise advances the state.
type StateMachine struct {
	mu    sync.Mutex
	state capability.DemuxerState
}

// NewStateMachine returns a machine in StateConstructed.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: capability.StateConstructed}
}

// Current returns the current state.
func (m *StateMachine) Current() capability.DemuxerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginParse validates that ParseContainer may run (Constructed only, or a
// no-op success if already Parsed) and reports which of the two applies.
// alreadyParsed is true when the caller should skip re-parsing.
func (m *StateMachine) BeginParse() (alreadyParsed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case capability.StateConstructed:
		return false, nil
	case capability.StateParsed, capability.StateReading:
		return true, nil
	default:
		return false, mediaerr.NewValidationError("demux.state.parse", 0,
			fmt.Errorf("parseContainer called in state %s", m.state))
	}
}

// FinishParse transitions Constructed → Parsed → Reading. Parsed is
// absorbing: once reached, the machine never returns to Constructed.
func (m *StateMachine) FinishParse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == capability.StateConstructed {
		m.state = capability.StateParsed
	}
	if m.state == capability.StateParsed {
		m.state = capability.StateReading
	}
}

// BeginSeek transitions Reading → Seeking. Returns an error if the demuxer
// hasn't been parsed yet or is already closed.
func (m *StateMachine) BeginSeek() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case capability.StateReading, capability.StateSeeking:
		m.state = capability.StateSeeking
		return nil
	default:
		return mediaerr.NewValidationError("demux.state.seek", 0,
			fmt.Errorf("seekTo called in state %s", m.state))
	}
}

// EndSeek transitions Seeking back to Reading; Seeking is always transient.
func (m *StateMachine) EndSeek() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == capability.StateSeeking {
		m.state = capability.StateReading
	}
}

// RequireReading validates that ReadChunk may run.
func (m *StateMachine) RequireReading() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case capability.StateReading, capability.StateSeeking:
		return nil
	case capability.StateClosed:
		return mediaerr.NewValidationError("demux.state.read", 0, fmt.Errorf("readChunk called after close"))
	default:
		return mediaerr.NewValidationError("demux.state.read", 0,
			fmt.Errorf("readChunk called before parseContainer (state %s)", m.state))
	}
}

// Close transitions unconditionally to Closed. Safe to call more than once.
func (m *StateMachine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = capability.StateClosed
}

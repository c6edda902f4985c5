// Package session implements the BTP session state machine: ingest inbound
// frames, emit outbound frames, run the two BTP timers, enforce every
// invariant of spec.md §3, and terminate on error. It is the "Session
// State" and "Session Engine" components together.
package session

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/mattertools/btp-session/btp/clock"
)

// Transport is the BLE GATT write characteristic, abstracted. Engine owns
// the only reference to it.
type Transport interface {
	Write(ctx context.Context, data []byte) error
	Disconnect(ctx context.Context)
}

// MessageSink receives fully reassembled Matter messages, one call per
// completed message, in inbound order.
type MessageSink interface {
	DeliverMatterMessage(ctx context.Context, msg []byte)
}

// Recorder is optional instrumentation. A nil Recorder is never dereferenced;
// Engine always has a concrete (possibly no-op) value.
type Recorder interface {
	FrameSent(kind string)
	FrameReceived(kind string)
	FrameDropped(reason string)
	WindowInFlight(n int)
}

type noopRecorder struct{}

func (noopRecorder) FrameSent(string)     {}
func (noopRecorder) FrameReceived(string) {}
func (noopRecorder) FrameDropped(string)  {}
func (noopRecorder) WindowInFlight(int)   {}

// Engine is the running BTP session. All of its exported entry points are
// serialized through mu, mirroring the teacher's handler.Lock()/Unlock()
// pattern: the reference model assumes cooperative single-threaded
// scheduling (spec.md §5), and a mutex is how that gets enforced on a
// multi-threaded Go runtime.
type Engine struct {
	mu sync.Mutex

	state *State

	transport Transport
	sink      MessageSink
	rec       Recorder

	sendInProgress bool
}

// New constructs a running Engine around a freshly negotiated session and
// starts its ack-receive timer, exactly as the Handshake Factory's final
// step requires (spec.md §4.2 step 7). Callers must have already written
// the handshake response before calling New.
func New(ctx context.Context, id uuid.UUID, version uint8, attMtu uint16, windowSize uint8, clk clock.Clock, transport Transport, sink MessageSink, rec Recorder) *Engine {
	if rec == nil {
		rec = noopRecorder{}
	}
	st := newState(id, version, attMtu, windowSize, clk)
	e := &Engine{
		state:     st,
		transport: transport,
		sink:      sink,
		rec:       rec,
	}
	st.ackReceiveTimer.Start(AckTimeout, e.onAckTimeout(ctx))
	return e
}

// ID returns the session's correlation identifier, used in every log line.
func (e *Engine) ID() uuid.UUID {
	return e.state.ID
}

// Close tears the session down: stops both timers and disconnects the
// transport, exactly once (spec.md §4.6). Safe to call more than once or
// from any goroutine.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.close(ctx, CloseReasonLocal)
}

// close is the unlocked core of Close; callers must already hold mu.
// Idempotent: isActive flips from true to false exactly once.
func (e *Engine) close(ctx context.Context, reason CloseReason) {
	if !e.state.isActive {
		return
	}
	e.state.isActive = false
	e.state.ackReceiveTimer.Stop()
	e.state.sendAckTimer.Stop()
	dlog.Debugf(ctx, "BTP %s closing: %s", e.state.ID, reason)
	// Disconnect may suspend; the teacher's tunWriteUnlocked unlocks
	// around transport calls for the same reason. No session state is
	// touched after this point, so it is safe to call unlocked.
	e.mu.Unlock()
	e.transport.Disconnect(ctx)
	e.mu.Lock()
}

// closed reports whether the session has already torn down.
func (e *Engine) closed() bool {
	return !e.state.isActive
}

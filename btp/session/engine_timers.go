package session

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/mattertools/btp-session/btp/frame"
)

// onAckTimeout returns the ack-receive timer callback (spec.md §4.5). It is
// its own entry point — timers fire asynchronously — so it takes mu itself,
// exactly like HandleIncomingBLEData and SendMatterMessage.
func (e *Engine) onAckTimeout(ctx context.Context) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed() {
			return
		}
		if e.state.prevIncomingAckNumber != e.state.sequenceNumber {
			dlog.Errorf(ctx, "BTP %s: ack-receive timeout, peer still owes an ack", e.state.ID)
			e.close(ctx, CloseReasonAckTimeout)
		}
	}
}

// onSendAckTimeout returns the send-ack timer callback (spec.md §4.5).
func (e *Engine) onSendAckTimeout(ctx context.Context) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed() {
			return
		}

		owed := serialLess(e.state.prevAckedSequenceNumber, e.state.prevIncomingSequenceNumber)
		if !owed {
			// Can't happen given the invariants the engine maintains, but
			// the teacher logs "should never happen" paths instead of
			// silently ignoring them (handler.go's keep-alive branch).
			dlog.Tracef(ctx, "BTP %s: send-ack timer fired with nothing owed", e.state.ID)
			return
		}

		f := frame.DataFrame{
			HasAck:         true,
			AckNumber:      e.state.prevIncomingSequenceNumber,
			SequenceNumber: e.state.getNext(),
		}
		encoded, err := frame.EncodeDataFrame(f)
		if err != nil {
			dlog.Errorf(ctx, "BTP %s: failed to encode standalone ack: %v", e.state.ID, err)
			return
		}

		if err := e.writeUnlocked(ctx, encoded); err != nil {
			dlog.Errorf(ctx, "BTP %s: failed to write standalone ack: %v", e.state.ID, err)
			return
		}
		e.rec.FrameSent("ack")
		e.state.prevAckedSequenceNumber = e.state.prevIncomingSequenceNumber

		if !e.state.ackReceiveTimer.Running() {
			e.state.ackReceiveTimer.Start(AckTimeout, e.onAckTimeout(ctx))
		}
	}
}

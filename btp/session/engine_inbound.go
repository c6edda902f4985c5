package session

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/mattertools/btp-session/btp/errs"
	"github.com/mattertools/btp-session/btp/frame"
)

// HandleIncomingBLEData ingests one buffer received from the transport
// (spec.md §4.3). Every error is logged; a ProtocolError or CodecError
// closes the session before being re-raised to the caller.
func (e *Engine) HandleIncomingBLEData(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return errs.NewFlowError(errs.SessionClosed, "session is closed")
	}

	if err := e.ingest(ctx, data); err != nil {
		dlog.Errorf(ctx, "BTP %s: inbound frame rejected: %v", e.state.ID, err)
		if _, ok := errs.IsProtocolError(err); ok {
			e.close(ctx, closeReasonForErr(err))
		} else if _, ok := err.(*errs.CodecError); ok {
			e.close(ctx, CloseReasonCodecError)
		}
		return err
	}
	return nil
}

func closeReasonForErr(err error) CloseReason {
	if pe, ok := errs.IsProtocolError(err); ok {
		if pe.Code == errs.AckTimeout {
			return CloseReasonAckTimeout
		}
	}
	return CloseReasonProtocolError
}

func (e *Engine) ingest(ctx context.Context, data []byte) error {
	fragmentSize := e.state.FragmentSize
	if len(data) > fragmentSize+3 {
		return errs.NewProtocolError(errs.OversizedFrame, "inbound buffer exceeds fragmentSize+3")
	}
	if len(data) > fragmentSize {
		dlog.Debugf(ctx, "BTP %s: inbound %d bytes exceeds fragmentSize %d, tolerating", e.state.ID, len(data), fragmentSize)
	}

	f, err := frame.DecodeDataFrame(data)
	if err != nil {
		return err
	}
	e.rec.FrameReceived("data")

	// Check 1: reject control frames.
	if f.IsHandshake || f.IsManagement {
		e.rec.FrameDropped("unexpected-control")
		return errs.NewProtocolError(errs.UnexpectedControlFrame, "inbound handshake/management frame")
	}

	// Check 2: reject empty, ack-less frames.
	if len(f.Payload) == 0 && !f.HasAck {
		return errs.NewProtocolError(errs.EmptyFrame, "empty payload with no ack")
	}

	// Check 3: strict in-order sequence.
	wantSeq := nextSeq(e.state.prevIncomingSequenceNumber)
	if f.SequenceNumber != wantSeq {
		return errs.NewProtocolError(errs.SequenceGap, "sequence number out of order")
	}
	e.state.prevIncomingSequenceNumber = f.SequenceNumber

	// Check 4: start the send-ack timer if this is the first frame owed
	// an ack.
	if !e.state.sendAckTimer.Running() {
		e.state.sendAckTimer.Start(SendAckTimeout, e.onSendAckTimeout(ctx))
	}

	// Check 5: ack validation. The lower bound is inclusive
	// (prevIncomingAckNumber <= ackNumber), not the strict "<" of spec.md
	// §4.3 step 5's prose: a freshly negotiated session has both
	// sequenceNumber and prevIncomingAckNumber at their zero value, and
	// spec.md §8 scenario 4's very first inbound frame carries ackNumber
	// 0 — a strict lower bound would reject it. See DESIGN.md.
	if f.HasAck {
		if !serialLessEq(e.state.prevIncomingAckNumber, f.AckNumber) || !serialLessEq(f.AckNumber, e.state.sequenceNumber) {
			return errs.NewProtocolError(errs.InvalidAck, "ack number out of the valid range")
		}
		e.state.ackReceiveTimer.Stop()
		e.state.prevIncomingAckNumber = f.AckNumber
		if serialLess(f.AckNumber, e.state.sequenceNumber) {
			e.state.ackReceiveTimer.Start(AckTimeout, e.onAckTimeout(ctx))
		}
	}

	// Reassembly.
	if f.IsBegin {
		if e.state.reassembly.active {
			return errs.NewProtocolError(errs.ReassemblyAlreadyInProgress, "begin frame while reassembly in progress")
		}
		e.state.reassembly.start(f.MessageLength)
		e.state.reassembly.append(f.Payload)
	} else {
		if len(f.Payload) > 0 {
			if !e.state.reassembly.active {
				return errs.NewProtocolError(errs.ReassemblyNotInProgress, "continuation frame with no reassembly in progress")
			}
			if e.state.reassembly.len()+len(f.Payload) > int(e.state.reassembly.expected) {
				return errs.NewProtocolError(errs.ReassemblyOverflow, "reassembly buffer would exceed messageLength")
			}
			e.state.reassembly.append(f.Payload)
		}
	}

	if f.IsEnd {
		if !e.state.reassembly.active {
			return errs.NewProtocolError(errs.ReassemblyNotInProgress, "end frame with no reassembly in progress")
		}
		if e.state.reassembly.len() != int(e.state.reassembly.expected) {
			return errs.NewProtocolError(errs.ReassemblyLengthMismatch, "reassembled length does not match messageLength")
		}
		msg := e.state.reassembly.buf
		e.state.reassembly.reset()

		e.mu.Unlock()
		e.sink.DeliverMatterMessage(ctx, msg)
		e.mu.Lock()
	}

	return nil
}

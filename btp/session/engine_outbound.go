package session

import (
	"context"

	"github.com/mattertools/btp-session/btp/errs"
	"github.com/mattertools/btp-session/btp/frame"
)

// SendMatterMessage queues a Matter message for segmentation and transmission
// (spec.md §4.4). Segments are written to the transport before this call
// returns what the window allows; the rest stays queued until acks open the
// window further.
func (e *Engine) SendMatterMessage(ctx context.Context, msg []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return errs.NewFlowError(errs.SessionClosed, "session is closed")
	}
	if len(msg) == 0 {
		return errs.NewFlowError(errs.EmptyMessage, "cannot send an empty message")
	}

	e.state.outboundQueue = append(e.state.outboundQueue, &outboundMessage{bytes: msg})
	return e.processSendQueue(ctx)
}

// processSendQueue drains the outbound queue while the window stays open,
// guarded by sendInProgress so a transport write that re-enters via a
// synchronous callback can't recurse (spec.md §4.4).
func (e *Engine) processSendQueue(ctx context.Context) error {
	if e.sendInProgress {
		return nil
	}
	e.sendInProgress = true
	defer func() { e.sendInProgress = false }()

	for len(e.state.outboundQueue) > 0 && e.state.windowOpen() {
		msg := e.state.outboundQueue[0]

		piggyback := serialLess(e.state.prevAckedSequenceNumber, e.state.prevIncomingSequenceNumber)
		if piggyback {
			e.state.prevAckedSequenceNumber = e.state.prevIncomingSequenceNumber
			e.state.sendAckTimer.Stop()
		}

		isBegin := msg.remaining() == msg.total()
		headerLen := 2
		if isBegin {
			headerLen += 2
		}
		if piggyback {
			headerLen++
		}
		segLen := msg.remaining()
		if max := e.state.FragmentSize - headerLen; segLen > max {
			segLen = max
		}
		isEnd := msg.remaining()-segLen == 0

		payload := msg.read(segLen)
		seq := e.state.getNext()

		f := frame.DataFrame{
			IsBegin:        isBegin,
			IsEnd:          isEnd,
			HasAck:         piggyback,
			SequenceNumber: seq,
			Payload:        payload,
		}
		if piggyback {
			f.AckNumber = e.state.prevIncomingSequenceNumber
		}
		if isBegin {
			f.HasMessageLength = true
			f.MessageLength = uint16(msg.total())
		}

		encoded, err := frame.EncodeDataFrame(f)
		if err != nil {
			return err
		}

		if err := e.writeUnlocked(ctx, encoded); err != nil {
			return err
		}
		e.rec.FrameSent("data")

		if !e.state.ackReceiveTimer.Running() {
			e.state.ackReceiveTimer.Start(AckTimeout, e.onAckTimeout(ctx))
		}

		if isEnd {
			e.state.outboundQueue = e.state.outboundQueue[1:]
		}

		e.rec.WindowInFlight(int(e.state.inFlight()))

		if !e.state.windowOpen() {
			break
		}
	}
	return nil
}

// writeUnlocked calls the transport with mu released, mirroring the
// teacher's tunWriteUnlocked: the only suspension point in the engine is a
// transport write, and it must not hold the lock across it.
func (e *Engine) writeUnlocked(ctx context.Context, data []byte) error {
	e.mu.Unlock()
	err := e.transport.Write(ctx, data)
	e.mu.Lock()
	if err != nil {
		return errs.Wrap(err, "transport write failed")
	}
	return nil
}

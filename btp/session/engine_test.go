package session

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mattertools/btp-session/btp/clock/clocktest"
	"github.com/mattertools/btp-session/btp/errs"
)

func hb(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

type fakeTransport struct {
	writes      [][]byte
	disconnects int
	writeErr    error
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := append([]byte(nil), data...)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) {
	f.disconnects++
}

type fakeSink struct {
	delivered [][]byte
}

func (f *fakeSink) DeliverMatterMessage(ctx context.Context, msg []byte) {
	f.delivered = append(f.delivered, append([]byte(nil), msg...))
}

func newTestEngine(t *testing.T, windowSize uint8) (*Engine, *fakeTransport, *fakeSink, *clocktest.FakeClock) {
	t.Helper()
	transport := &fakeTransport{}
	sink := &fakeSink{}
	clk := clocktest.NewFakeClock()
	e := New(context.Background(), uuid.New(), 4, 20, windowSize, clk, transport, sink, nil)
	return e, transport, sink, clk
}

// TestInboundThenOutbound reproduces spec.md §8 scenario 4: a one-segment
// inbound message delivers its payload, and the following outbound send
// piggybacks the owed ack.
func TestInboundThenOutbound(t *testing.T) {
	ctx := context.Background()
	e, transport, sink, _ := newTestEngine(t, 6)

	in := hb(t, "0d 00 00 09 00 01 02 03 04 05 06 07 08 09")
	require.NoError(t, e.HandleIncomingBLEData(ctx, in))
	require.Len(t, sink.delivered, 1)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, sink.delivered[0])

	require.NoError(t, e.SendMatterMessage(ctx, []byte{9, 8, 7, 6, 5, 4, 3, 2, 1}))
	require.Len(t, transport.writes, 1)
	require.Equal(t, hb(t, "0d 00 01 09 00 09 08 07 06 05 04 03 02 01"), transport.writes[0])
}

func TestManagementFrameRejected(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 6)

	in := hb(t, "02 00 00") // isManagement, opcode 0x00, seq 0x00
	err := e.HandleIncomingBLEData(ctx, in)
	require.Error(t, err)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.UnexpectedControlFrame, pe.Code)
	require.Equal(t, 1, transport.disconnects)
	require.True(t, e.closed())
}

func TestSequenceGapRejected(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 6)

	// expected seq is 0; send seq 5 instead, with a non-empty payload so
	// the empty-frame check doesn't mask the sequence check.
	in := hb(t, "04 05 01")
	err := e.HandleIncomingBLEData(ctx, in)
	require.Error(t, err)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.SequenceGap, pe.Code)
	require.Equal(t, 1, transport.disconnects)
}

func TestAckTimeoutClosesSession(t *testing.T) {
	ctx := context.Background()
	e, transport, _, clk := newTestEngine(t, 6)

	require.NoError(t, e.SendMatterMessage(ctx, []byte{1, 2, 3}))
	require.Len(t, transport.writes, 1)

	timers := clk.Timers()
	require.NotEmpty(t, timers)
	// The first timer vended is the ack-receive timer started by New.
	timers[0].Fire()

	require.True(t, e.closed())
	require.Equal(t, 1, transport.disconnects)
}

// TestWindowInvariantBlocksSendAtCapacity reproduces spec.md §8's window
// invariant: in-flight frames never exceed windowSize-1, and a message that
// would push past that stays queued until an ack opens the window again.
func TestWindowInvariantBlocksSendAtCapacity(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 3)

	require.NoError(t, e.SendMatterMessage(ctx, []byte{1}))
	require.NoError(t, e.SendMatterMessage(ctx, []byte{2}))
	require.NoError(t, e.SendMatterMessage(ctx, []byte{3}))

	// windowSize=3: at most 2 frames may be in flight at once.
	require.Len(t, transport.writes, 2)
	require.Len(t, e.state.outboundQueue, 1)
	require.Equal(t, uint8(2), e.state.inFlight())
	require.False(t, e.state.windowOpen())

	// Ack the first frame (seq=1); the window reopens and the queued
	// third message can go out.
	require.NoError(t, e.HandleIncomingBLEData(ctx, hb(t, "08 01 00")))
	require.Equal(t, uint8(1), e.state.inFlight())

	require.NoError(t, e.processSendQueue(ctx))
	require.Len(t, transport.writes, 3)
	require.Empty(t, e.state.outboundQueue)
}

func TestReassemblyOverflowRejected(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 6)

	begin := hb(t, "01 00 05 00 01 02 03") // isBegin, seq=0, msgLen=5, 3-byte payload
	require.NoError(t, e.HandleIncomingBLEData(ctx, begin))

	cont := hb(t, "00 01 04 05 06 07 08") // seq=1, 5 more bytes: 3+5 > 5
	err := e.HandleIncomingBLEData(ctx, cont)
	require.Error(t, err)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.ReassemblyOverflow, pe.Code)
	require.Equal(t, 1, transport.disconnects)
}

func TestReassemblyLengthMismatchRejected(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 6)

	// begin+end, seq=0, msgLen=5, but only 3 payload bytes arrive.
	in := hb(t, "05 00 05 00 01 02 03")
	err := e.HandleIncomingBLEData(ctx, in)
	require.Error(t, err)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.ReassemblyLengthMismatch, pe.Code)
	require.Equal(t, 1, transport.disconnects)
}

func TestInvalidAckRejected(t *testing.T) {
	ctx := context.Background()
	e, transport, _, _ := newTestEngine(t, 6)

	// seq=0 is the expected next inbound frame, but ackNumber=1 exceeds
	// our own outgoing sequenceNumber (0): out of the valid range.
	in := hb(t, "08 01 00")
	err := e.HandleIncomingBLEData(ctx, in)
	require.Error(t, err)
	pe, ok := errs.IsProtocolError(err)
	require.True(t, ok)
	require.Equal(t, errs.InvalidAck, pe.Code)
	require.Equal(t, 1, transport.disconnects)
}

func TestIngestAndSendRejectedAfterClose(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, 6)

	e.Close(ctx)
	require.True(t, e.closed())

	err := e.HandleIncomingBLEData(ctx, hb(t, "04 00 01"))
	require.Error(t, err)
	fe, ok := err.(*errs.FlowError)
	require.True(t, ok)
	require.Equal(t, errs.SessionClosed, fe.Code)

	err = e.SendMatterMessage(ctx, []byte{1, 2, 3})
	require.Error(t, err)
	fe, ok = err.(*errs.FlowError)
	require.True(t, ok)
	require.Equal(t, errs.SessionClosed, fe.Code)
}

func TestSendAckTimerSynthesizesStandaloneAck(t *testing.T) {
	ctx := context.Background()
	e, transport, _, clk := newTestEngine(t, 6)

	// A minimal inbound data frame that owes an ack: begin+end with payload.
	inbound := hb(t, "05 00 03 00 01 02 03")
	require.NoError(t, e.HandleIncomingBLEData(ctx, inbound))

	var sendAckTimer *clocktest.FakeTimer
	for _, tm := range clk.Timers() {
		if tm.Running() && tm != clk.Timers()[0] {
			sendAckTimer = tm
		}
	}
	require.NotNil(t, sendAckTimer)
	sendAckTimer.Fire()

	require.Len(t, transport.writes, 1)
	got := transport.writes[0]
	require.Equal(t, byte(0x08), got[0]) // hasAck only
}

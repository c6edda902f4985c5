package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/mattertools/btp-session/btp/clock"
)

const (
	// AckTimeout and SendAckTimeout are the two BTP timer periods (spec §6).
	AckTimeout     = 15000 * time.Millisecond
	SendAckTimeout = 5000 * time.Millisecond
)

// CloseReason classifies why a session was closed, grounded on the
// teacher's categorized rpc.ConnectInfo_ErrType outcomes.
type CloseReason int

const (
	CloseReasonUnspecified CloseReason = iota
	CloseReasonLocal                  // close() called directly by the upper layer
	CloseReasonProtocolError          // peer violated a BTP invariant
	CloseReasonCodecError             // malformed bytes from the peer
	CloseReasonAckTimeout             // ack-receive timer expired with an ack still owed
	CloseReasonTransportError         // a write to the transport failed
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonLocal:
		return "local"
	case CloseReasonProtocolError:
		return "protocol-error"
	case CloseReasonCodecError:
		return "codec-error"
	case CloseReasonAckTimeout:
		return "ack-timeout"
	case CloseReasonTransportError:
		return "transport-error"
	default:
		return "unspecified"
	}
}

// outboundMessage is a queued Matter message awaiting segmentation. It
// retains (bytes, offset) rather than re-slicing or copying per segment,
// per the Design Notes' "Outbound cursor" guidance.
type outboundMessage struct {
	bytes  []byte
	offset int
}

func (m *outboundMessage) remaining() int {
	return len(m.bytes) - m.offset
}

func (m *outboundMessage) total() int {
	return len(m.bytes)
}

func (m *outboundMessage) read(n int) []byte {
	seg := m.bytes[m.offset : m.offset+n]
	m.offset += n
	return seg
}

// reassembly is the append-only inbound message buffer. Capacity is
// pre-reserved to the advertised messageLength at begin time, per the
// Design Notes.
type reassembly struct {
	active   bool
	expected uint16
	buf      []byte
}

func (r *reassembly) start(expected uint16) {
	r.active = true
	r.expected = expected
	r.buf = make([]byte, 0, expected)
}

func (r *reassembly) append(p []byte) {
	r.buf = append(r.buf, p...)
}

func (r *reassembly) len() int {
	return len(r.buf)
}

func (r *reassembly) reset() {
	r.active = false
	r.expected = 0
	r.buf = nil
}

// State is the session's in-memory record (spec.md §3). It is mutated
// exclusively by Engine; nothing outside this package writes to it.
type State struct {
	ID uuid.UUID

	Version     uint8
	ATTMTU      uint16
	FragmentSize int
	WindowSize  uint8

	// sequenceNumber is the last sequence number we have sent (0 before the
	// first send); getNext advances it before each send.
	sequenceNumber uint8
	// prevAckedSequenceNumber is the last of the peer's sequence numbers we
	// have told the peer (via piggyback or standalone ack) that we've seen.
	prevAckedSequenceNumber uint8
	// prevIncomingSequenceNumber is the last inbound sequence number we
	// have validated and accepted. It starts at 255 so the first inbound
	// frame's required sequenceNumber, (prevIncomingSequenceNumber+1) mod
	// 256, is 0 without a separate "nothing received yet" flag.
	prevIncomingSequenceNumber uint8
	// prevIncomingAckNumber is the last ack number the peer has sent us,
	// i.e. how far our own outbound stream has been acknowledged.
	prevIncomingAckNumber uint8

	reassembly reassembly

	outboundQueue []*outboundMessage

	ackReceiveTimer clock.Timer
	sendAckTimer    clock.Timer

	isActive bool
}

func newState(id uuid.UUID, version uint8, attMtu uint16, windowSize uint8, clk clock.Clock) *State {
	return &State{
		ID:           id,
		Version:      version,
		ATTMTU:       attMtu,
		FragmentSize: int(attMtu) - 3,
		WindowSize:   windowSize,
		isActive:     true,
		// prevIncomingSequenceNumber and prevAckedSequenceNumber both
		// start "one before zero" in mod-256 serial arithmetic, so the
		// first inbound frame (seq 0) is expected and immediately owed
		// an ack, without a separate sentinel flag.
		prevIncomingSequenceNumber: 255,
		prevAckedSequenceNumber:    255,
		ackReceiveTimer:            clk.NewTimer(),
		sendAckTimer:               clk.NewTimer(),
	}
}

// inFlight returns the number of outbound frames sent but not yet acked.
func (s *State) inFlight() uint8 {
	return inFlightCount(s.sequenceNumber, s.prevIncomingAckNumber)
}

// windowOpen reports whether another data frame may be sent without
// exceeding windowSize-1 in-flight frames (spec.md §3 invariant: "no new
// data frame is emitted when equal" — so sending is only permitted while
// the current in-flight count is strictly less than windowSize-1, which
// keeps the "at any moment, in-flight ≤ windowSize-1" property from §8
// holding even immediately after the send).
func (s *State) windowOpen() bool {
	return int(s.inFlight()) < int(s.WindowSize)-1
}

// getNext increments and returns the next outbound sequence number,
// wrapping from 255 to 0.
func (s *State) getNext() uint8 {
	s.sequenceNumber = nextSeq(s.sequenceNumber)
	return s.sequenceNumber
}

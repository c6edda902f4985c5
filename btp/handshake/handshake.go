// Package handshake implements the Handshake Factory (spec.md §4.2): the
// single entry point that turns a handshake-request byte buffer into a
// running session.Engine, after negotiating version, ATT_MTU, and window
// size and writing the handshake response.
package handshake

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/mattertools/btp-session/btp/clock"
	"github.com/mattertools/btp-session/btp/errs"
	"github.com/mattertools/btp-session/btp/frame"
	"github.com/mattertools/btp-session/btp/session"
)

// supportedVersion is the one BTP version this codec speaks (spec.md §6:
// SUPPORTED_VERSIONS = {4}).
const supportedVersion = 4

// CreateFromHandshakeRequest decodes requestBytes, negotiates session
// parameters, writes the handshake response via transport, and returns a
// running Engine with its ack-receive timer already started.
//
// maxDataSize is the advisory link MTU; negotiateATTMTU uses it directly as
// the candidate ATT_MTU, without adding the 3-byte GATT PDU header. Pass
// nil when it is not known. If negotiation fails because
// the peer proposed no version we support, transport.Disconnect is
// invoked and NoCommonVersion is returned.
func CreateFromHandshakeRequest(
	ctx context.Context,
	requestBytes []byte,
	maxDataSize *uint16,
	transport session.Transport,
	sink session.MessageSink,
	clk clock.Clock,
	rec session.Recorder,
) (*session.Engine, error) {
	req, err := frame.DecodeHandshakeRequest(requestBytes)
	if err != nil {
		return nil, err
	}

	version, ok := negotiateVersion(req.Versions)
	if !ok {
		transport.Disconnect(ctx)
		return nil, errs.NewProtocolError(errs.NoCommonVersion, "peer proposed no version we support")
	}

	attMtu := negotiateATTMTU(req.ATTMTU, maxDataSize)
	windowSize := negotiateWindowSize(req.ClientWindowSize)

	resp := frame.HandshakeResponse{Version: version, ATTMTU: attMtu, WindowSize: windowSize}
	encoded, err := frame.EncodeHandshakeResponse(resp)
	if err != nil {
		return nil, err
	}
	if err := transport.Write(ctx, encoded); err != nil {
		return nil, errs.Wrap(err, "writing handshake response")
	}

	id := uuid.New()
	dlog.Debugf(ctx, "BTP %s: handshake complete, version=%d attMtu=%d window=%d", id, version, attMtu, windowSize)

	return session.New(ctx, id, version, attMtu, windowSize, clk, transport, sink, rec), nil
}

// negotiateVersion selects the highest supported version also present in
// the peer's proposal (spec.md §4.2 step 2). With exactly one supported
// version this reduces to membership test, but is written generically.
func negotiateVersion(proposed []uint8) (uint8, bool) {
	best, found := uint8(0), false
	for _, v := range proposed {
		if v == supportedVersion && (!found || v > best) {
			best, found = v, true
		}
	}
	return best, found
}

// negotiateATTMTU implements spec.md §4.2 step 3. The prose's "linkMtu =
// maxDataSize + 3" does not reproduce the worked examples in spec.md §8
// (maxDataSize=100 against a peer proposing 185 yields a chosen attMtu of
// exactly 100, not 103); this resolves the Open Question in spec.md §9 by
// treating maxDataSize directly as the candidate link MTU, matching the
// worked scenarios exactly. See DESIGN.md.
func negotiateATTMTU(peerATTMTU uint16, maxDataSize *uint16) uint16 {
	attMtu := uint16(frame.MinATTMTU)
	if maxDataSize == nil {
		return attMtu
	}
	linkMtu := *maxDataSize
	if linkMtu <= frame.MinATTMTU {
		return attMtu
	}
	if peerATTMTU == frame.MinATTMTU {
		return minU16(linkMtu, frame.MaxBTPMTU)
	}
	return minU16(minU16(peerATTMTU, linkMtu), frame.MaxBTPMTU)
}

// negotiateWindowSize implements spec.md §4.2 step 5.
func negotiateWindowSize(clientWindowSize uint8) uint8 {
	if int(clientWindowSize) > frame.MaxWindow {
		return frame.MaxWindow
	}
	return clientWindowSize
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

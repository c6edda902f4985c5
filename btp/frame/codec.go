package frame

import (
	"github.com/mattertools/btp-session/btp/errs"
)

// EncodeHandshakeRequest serializes req into the fixed 9-byte handshake
// request layout: magic(2) + packed-versions(4) + attMtu-LE(2) +
// clientWindowSize(1).
func EncodeHandshakeRequest(req HandshakeRequest) ([]byte, error) {
	if len(req.Versions) == 0 || len(req.Versions) > maxVersionSlots {
		return nil, errs.NewCodecError(errs.NoValidVersions, "must propose 1-4 versions")
	}
	out := make([]byte, HandshakeRequestLen)
	out[0] = magicByte1
	out[1] = magicByte2

	// Nibble layout: [reserved=0, v0, v1, v2, v3] packed hi|lo into 4
	// bytes: byte0=(0<<4)|v0, byte1=(v1<<4)|v2, byte2=(v3<<4)|0, byte3=0.
	var v [maxVersionSlots]uint8
	copy(v[:], req.Versions)
	out[2] = v[0] & 0x0f
	out[3] = (v[1] << 4) | (v[2] & 0x0f)
	out[4] = v[3] << 4
	out[5] = 0

	putUint16LE(out[6:8], req.ATTMTU)
	out[8] = req.ClientWindowSize
	return out, nil
}

// DecodeHandshakeRequest parses the fixed 9-byte handshake request layout.
func DecodeHandshakeRequest(b []byte) (HandshakeRequest, error) {
	var req HandshakeRequest
	if len(b) < HandshakeRequestLen {
		return req, errs.NewCodecError(errs.Truncated, "handshake request too short")
	}
	if b[0] != magicByte1 {
		return req, errs.NewCodecError(errs.BadMagic, "bad handshake request magic")
	}
	// The wire layout has no room for a dedicated opcode byte alongside the
	// 9-byte total the worked examples in spec.md §8 require (magic(2) +
	// versions(4) + attMtu(2) + window(1)); the second magic byte doubles
	// as the fixed handshake management opcode (spec.md §4.1: "management
	// opcode (must be 0x6C)"), so it is validated under its own error code
	// rather than folded into BadMagic. See DESIGN.md.
	if b[1] != managementOpcodeHandshake {
		return req, errs.NewCodecError(errs.BadManagementOpcode, "bad handshake request management opcode")
	}

	nibbles := [5]uint8{
		b[2] >> 4,
		b[2] & 0x0f,
		b[3] >> 4,
		b[3] & 0x0f,
		b[4] >> 4,
	}
	// nibbles[0] is the reserved always-zero leading nibble; versions
	// occupy nibbles[1..4] in preference order, zero meaning absent.
	for _, n := range nibbles[1:] {
		if n != 0 {
			req.Versions = append(req.Versions, n)
		}
	}
	if len(req.Versions) == 0 {
		return req, errs.NewCodecError(errs.NoValidVersions, "no valid versions in handshake request")
	}

	req.ATTMTU = uint16LE(b[6:8])
	req.ClientWindowSize = b[8]
	return req, nil
}

// EncodeHandshakeResponse serializes resp into the fixed 6-byte handshake
// response layout: magic(2) + version(1) + attMtu-LE(2) + windowSize(1).
func EncodeHandshakeResponse(resp HandshakeResponse) ([]byte, error) {
	out := make([]byte, HandshakeResponseLen)
	out[0] = magicByte1
	out[1] = magicByte2
	out[2] = resp.Version
	putUint16LE(out[3:5], resp.ATTMTU)
	out[5] = resp.WindowSize
	return out, nil
}

// DecodeHandshakeResponse parses the fixed 6-byte handshake response layout.
func DecodeHandshakeResponse(b []byte) (HandshakeResponse, error) {
	var resp HandshakeResponse
	if len(b) < HandshakeResponseLen {
		return resp, errs.NewCodecError(errs.Truncated, "handshake response too short")
	}
	if b[0] != magicByte1 || b[1] != magicByte2 {
		return resp, errs.NewCodecError(errs.BadMagic, "bad handshake response magic")
	}
	resp.Version = b[2]
	resp.ATTMTU = uint16LE(b[3:5])
	resp.WindowSize = b[5]
	return resp, nil
}

// EncodeDataFrame serializes f per spec.md §4.1's field order: flags,
// (opcode?), (ack?), seq, (msgLen?), payload.
func EncodeDataFrame(f DataFrame) ([]byte, error) {
	flags := Flags(0)
	if f.IsHandshake {
		flags |= flagIsHandshake
	}
	if f.IsManagement {
		flags |= flagIsManagement
	}
	if f.HasAck {
		flags |= flagHasAck
	}
	if f.IsBegin {
		flags |= flagIsBegin
	}
	if f.IsEnd {
		flags |= flagIsEnd
	}

	headerLen := 1
	if f.HasOpcode {
		headerLen++
	}
	if f.HasAck {
		headerLen++
	}
	headerLen++ // sequence number, always present
	if f.IsBegin && !f.HasMessageLength {
		return nil, errs.NewCodecError(errs.BeginFlagMismatch, "isBegin requires messageLength")
	}
	if !f.IsBegin && f.HasMessageLength {
		return nil, errs.NewCodecError(errs.BeginFlagMismatch, "messageLength requires isBegin")
	}
	if f.IsBegin {
		headerLen += 2
	}

	out := make([]byte, 0, headerLen+len(f.Payload))
	out = append(out, byte(flags))
	if f.HasOpcode {
		out = append(out, f.ManagementOpcode)
	}
	if f.HasAck {
		out = append(out, f.AckNumber)
	}
	out = append(out, f.SequenceNumber)
	if f.IsBegin {
		lenBuf := [2]byte{}
		putUint16LE(lenBuf[:], f.MessageLength)
		out = append(out, lenBuf[:]...)
	}
	out = append(out, f.Payload...)
	return out, nil
}

// DecodeDataFrame parses a data/ack frame. IsContinue is always recomputed
// as !IsBegin, per spec.md §4.1, regardless of any wire bit.
func DecodeDataFrame(b []byte) (DataFrame, error) {
	var f DataFrame
	if len(b) < 1 {
		return f, errs.NewCodecError(errs.Truncated, "empty data frame")
	}
	flags := Flags(b[0])
	f.IsHandshake = flags&flagIsHandshake != 0
	f.IsManagement = flags&flagIsManagement != 0
	f.HasAck = flags&flagHasAck != 0
	f.IsBegin = flags&flagIsBegin != 0
	f.IsEnd = flags&flagIsEnd != 0
	f.IsContinue = !f.IsBegin

	pos := 1
	if f.IsManagement {
		if len(b) < pos+1 {
			return f, errs.NewCodecError(errs.Truncated, "missing management opcode")
		}
		f.ManagementOpcode = b[pos]
		f.HasOpcode = true
		pos++
	}
	if f.HasAck {
		if len(b) < pos+1 {
			return f, errs.NewCodecError(errs.AckFlagMismatch, "hasAck set but ackNumber missing")
		}
		f.AckNumber = b[pos]
		pos++
	}
	if len(b) < pos+1 {
		return f, errs.NewCodecError(errs.Truncated, "missing sequence number")
	}
	f.SequenceNumber = b[pos]
	pos++

	if f.IsBegin {
		if len(b) < pos+2 {
			return f, errs.NewCodecError(errs.BeginFlagMismatch, "isBegin set but messageLength missing")
		}
		f.MessageLength = uint16LE(b[pos : pos+2])
		f.HasMessageLength = true
		pos += 2
	}

	if pos < len(b) {
		f.Payload = append([]byte(nil), b[pos:]...)
	}
	return f, nil
}

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func uint16LE(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// Package errs defines the BTP error taxonomy: codec errors (malformed
// bytes), protocol errors (peer rule violations, fatal to the session),
// and flow errors (upper-layer misuse, session stays alive).
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// CodecCode enumerates frame-codec failures (spec.md CodecError variants).
type CodecCode int

const (
	_ CodecCode = iota
	BadMagic
	BadManagementOpcode
	NoValidVersions
	AckFlagMismatch
	BeginFlagMismatch
	Truncated
)

func (c CodecCode) String() string {
	switch c {
	case BadMagic:
		return "BadMagic"
	case BadManagementOpcode:
		return "BadManagementOpcode"
	case NoValidVersions:
		return "NoValidVersions"
	case AckFlagMismatch:
		return "AckFlagMismatch"
	case BeginFlagMismatch:
		return "BeginFlagMismatch"
	case Truncated:
		return "Truncated"
	default:
		return fmt.Sprintf("CodecCode(%d)", int(c))
	}
}

// CodecError is fatal to the current frame; the caller must close the
// session.
type CodecError struct {
	Code CodecCode
	msg  string
}

func NewCodecError(code CodecCode, msg string) *CodecError {
	return &CodecError{Code: code, msg: msg}
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("btp codec: %s: %s", e.Code, e.msg)
}

// ProtocolCode enumerates BtpProtocolError variants from spec.md §7.
type ProtocolCode int

const (
	_ ProtocolCode = iota
	NoCommonVersion
	OversizedFrame
	UnexpectedControlFrame
	EmptyFrame
	SequenceGap
	InvalidAck
	AckTimeout
	ReassemblyOverflow
	ReassemblyLengthMismatch
	ReassemblyNotInProgress
	ReassemblyAlreadyInProgress
)

func (c ProtocolCode) String() string {
	switch c {
	case NoCommonVersion:
		return "NoCommonVersion"
	case OversizedFrame:
		return "OversizedFrame"
	case UnexpectedControlFrame:
		return "UnexpectedControlFrame"
	case EmptyFrame:
		return "EmptyFrame"
	case SequenceGap:
		return "SequenceGap"
	case InvalidAck:
		return "InvalidAck"
	case AckTimeout:
		return "AckTimeout"
	case ReassemblyOverflow:
		return "ReassemblyOverflow"
	case ReassemblyLengthMismatch:
		return "ReassemblyLengthMismatch"
	case ReassemblyNotInProgress:
		return "ReassemblyNotInProgress"
	case ReassemblyAlreadyInProgress:
		return "ReassemblyAlreadyInProgress"
	default:
		return fmt.Sprintf("ProtocolCode(%d)", int(c))
	}
}

// ProtocolError is a peer rule violation. It is always fatal to the
// session: the engine calls close() before propagating it to the caller.
type ProtocolError struct {
	Code ProtocolCode
	msg  string
}

func NewProtocolError(code ProtocolCode, msg string) *ProtocolError {
	return &ProtocolError{Code: code, msg: msg}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("btp protocol: %s: %s", e.Code, e.msg)
}

// FlowCode enumerates BtpFlowError variants.
type FlowCode int

const (
	_ FlowCode = iota
	EmptyMessage
	SessionClosed
)

func (c FlowCode) String() string {
	switch c {
	case EmptyMessage:
		return "EmptyMessage"
	case SessionClosed:
		return "SessionClosed"
	default:
		return fmt.Sprintf("FlowCode(%d)", int(c))
	}
}

// FlowError is upper-layer misuse. The session remains alive.
type FlowError struct {
	Code FlowCode
	msg  string
}

func NewFlowError(code FlowCode, msg string) *FlowError {
	return &FlowError{Code: code, msg: msg}
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("btp flow: %s: %s", e.Code, e.msg)
}

// Wrap annotates err with a message using the teacher's error-wrapping
// idiom, preserving the original error for errors.Cause/errors.Is.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// IsProtocolError reports whether err (or a wrapped cause) is a *ProtocolError.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	for err != nil {
		if p, ok := err.(*ProtocolError); ok {
			pe = p
			break
		}
		err = errors.Unwrap(err)
	}
	return pe, pe != nil
}

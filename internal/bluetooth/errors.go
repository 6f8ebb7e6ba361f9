package bluetooth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the category of a scan error.
type ErrorKind int

const (
	// KindStartup covers adapter unavailable, permission denied and discovery
	// start failures. It is terminal for the session.
	KindStartup ErrorKind = iota
	// KindDecode covers malformed or unexpected event data. Only the offending
	// event is dropped.
	KindDecode
	// KindSession covers a scan that ended on its own after a successful start.
	KindSession
)

func (k ErrorKind) String() string {
	switch k {
	case KindStartup:
		return "startup error"
	case KindDecode:
		return "decode error"
	case KindSession:
		return "session error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ScanError carries the diagnostic context of a scan failure.
type ScanError struct {
	Kind    ErrorKind
	Message string
	Address string // offending device address, if any
	Probe   string // platform probe output at the time of failure
	Err     error
}

func (e *ScanError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Address != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Address)
		sb.WriteString("]")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, " (caused by: %v)", e.Err)
	}
	return sb.String()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func NewStartupError(message string, err error) *ScanError {
	return &ScanError{Kind: KindStartup, Message: message, Err: err}
}

func NewDecodeError(address, message string, err error) *ScanError {
	return &ScanError{Kind: KindDecode, Address: address, Message: message, Err: err}
}

func NewSessionError(message string, err error) *ScanError {
	return &ScanError{Kind: KindSession, Message: message, Err: err}
}

// IsStartup reports whether err is, or wraps, a startup ScanError.
func IsStartup(err error) bool {
	return hasKind(err, KindStartup)
}

// IsDecode reports whether err is, or wraps, a decode ScanError.
func IsDecode(err error) bool {
	return hasKind(err, KindDecode)
}

// IsSession reports whether err is, or wraps, a session ScanError.
func IsSession(err error) bool {
	return hasKind(err, KindSession)
}

func hasKind(err error, kind ErrorKind) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

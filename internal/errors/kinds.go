package errors

// Error taxonomy shared by the RSP codec, the session and the device transfer.

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies one class of failure.
type Kind int

const (
	KindNone Kind = iota
	KindBadInput
	KindRecvTimeout
	KindSendTimeout
	KindConnectionClosed
	KindSocketError
	KindBadFormat
	KindBadChecksum
	KindRunLengthUnsupported
	KindMsgNotFullySent
	KindBadResponse
	KindServerReported
	KindOverflow
	KindStructureTooSmall
	KindStructureTooLarge
	KindInvalidHeader
	KindFilterReenabled
	KindNoAckUnsupported
	KindFeatureDisabled
	KindStorage
)

var kindNames = map[Kind]string{
	KindNone:                 "no error",
	KindBadInput:             "bad input",
	KindRecvTimeout:          "receive timeout",
	KindSendTimeout:          "send timeout",
	KindConnectionClosed:     "connection closed",
	KindSocketError:          "socket error",
	KindBadFormat:            "bad message format",
	KindBadChecksum:          "bad checksum",
	KindRunLengthUnsupported: "run-length encoding not supported",
	KindMsgNotFullySent:      "message not fully sent",
	KindBadResponse:          "bad response",
	KindServerReported:       "server reported error",
	KindOverflow:             "receive buffer overflow",
	KindStructureTooSmall:    "logging structure too small",
	KindStructureTooLarge:    "logging structure too large",
	KindInvalidHeader:        "invalid logging structure header",
	KindFilterReenabled:      "filter re-enabled during transfer",
	KindNoAckUnsupported:     "no-ack mode not supported by server",
	KindFeatureDisabled:      "feature disabled in firmware",
	KindStorage:              "snapshot storage error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ProtocolError is the error value produced by the core. Code is only
// meaningful for KindServerReported with HasCode set; Text carries the
// server's E.<text> message or extra detail.
type ProtocolError struct {
	Kind    Kind
	Code    uint8
	HasCode bool
	Text    string
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Kind == KindServerReported && e.HasCode:
		msg = fmt.Sprintf("%s: E%02X", msg, e.Code)
	case e.Text != "":
		msg = msg + ": " + e.Text
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches any ProtocolError of the same kind, so sentinels such as
// ErrBadChecksum work with errors.Is regardless of detail.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrBadInput             = &ProtocolError{Kind: KindBadInput}
	ErrRecvTimeout          = &ProtocolError{Kind: KindRecvTimeout}
	ErrSendTimeout          = &ProtocolError{Kind: KindSendTimeout}
	ErrConnectionClosed     = &ProtocolError{Kind: KindConnectionClosed}
	ErrSocketError          = &ProtocolError{Kind: KindSocketError}
	ErrBadFormat            = &ProtocolError{Kind: KindBadFormat}
	ErrBadChecksum          = &ProtocolError{Kind: KindBadChecksum}
	ErrRunLengthUnsupported = &ProtocolError{Kind: KindRunLengthUnsupported}
	ErrMsgNotFullySent      = &ProtocolError{Kind: KindMsgNotFullySent}
	ErrBadResponse          = &ProtocolError{Kind: KindBadResponse}
	ErrServerReported       = &ProtocolError{Kind: KindServerReported}
	ErrOverflow             = &ProtocolError{Kind: KindOverflow}
	ErrStructureTooSmall    = &ProtocolError{Kind: KindStructureTooSmall}
	ErrStructureTooLarge    = &ProtocolError{Kind: KindStructureTooLarge}
	ErrInvalidHeader        = &ProtocolError{Kind: KindInvalidHeader}
	ErrFilterReenabled      = &ProtocolError{Kind: KindFilterReenabled}
	ErrNoAckUnsupported     = &ProtocolError{Kind: KindNoAckUnsupported}
	ErrFeatureDisabled      = &ProtocolError{Kind: KindFeatureDisabled}
	ErrStorage              = &ProtocolError{Kind: KindStorage}
)

// New returns a ProtocolError of the given kind with optional detail text.
func New(kind Kind, text string) error {
	return &ProtocolError{Kind: kind, Text: text}
}

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &ProtocolError{Kind: kind, Text: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error) error {
	return &ProtocolError{Kind: kind, Err: err}
}

// ServerCode builds a ServerReported error for an E<nn> reply.
func ServerCode(code uint8) error {
	return &ProtocolError{Kind: KindServerReported, Code: code, HasCode: true}
}

// ServerText builds a ServerReported error for an E.<text> reply.
func ServerText(text string) error {
	return &ProtocolError{Kind: KindServerReported, Text: text}
}

// KindOf returns the kind of the first ProtocolError in err's chain, or
// KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var pe *ProtocolError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return KindNone
}

package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps connection errors against a GDB server
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with GDB server at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "Start the J-Link, ST-Link or OpenOCD GDB server first and check that the port matches its GDB port",
		Try:     fmt.Sprintf("rtegdb header --host %s --port %d", host, port),
		Err:     err,
	}
}

// WrapTransferError wraps core errors of a top-level operation
func WrapTransferError(err error, operation string) error {
	if err == nil {
		return nil
	}

	reason, hint := describeKind(KindOf(err))
	return UserFriendlyError{
		Message: fmt.Sprintf("Operation failed: %s", operation),
		Reason:  reason,
		Hint:    hint,
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Generate a commented default file to start from",
		Try:     fmt.Sprintf("rtegdb config init --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	switch KindOf(err) {
	case KindNoAckUnsupported:
		return "The GDB server does not support no-acknowledgment mode"
	case KindRecvTimeout:
		return "The GDB server did not answer the connection handshake"
	case KindConnectionClosed:
		return "The GDB server closed the connection during the handshake"
	}

	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - GDB server may not be running"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - no GDB server is listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or host unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - GDB server closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func describeKind(kind Kind) (reason, hint string) {
	switch kind {
	case KindRecvTimeout, KindSendTimeout:
		return "The GDB server did not respond in time",
			"The target may be held in reset or the probe connection may be lost"
	case KindConnectionClosed, KindSocketError:
		return "The connection to the GDB server was lost",
			"Restart the GDB server and reconnect"
	case KindBadFormat, KindBadChecksum, KindBadResponse, KindOverflow:
		return "Received an invalid or malformed message from the GDB server",
			"Try a smaller --msgsize value"
	case KindRunLengthUnsupported:
		return "The GDB server sent run-length encoded data",
			"Disable run-length encoding in the GDB server settings"
	case KindServerReported:
		return "The GDB server reported an error",
			"The address may be outside valid target memory or the target may be running without memory access"
	case KindStructureTooSmall, KindStructureTooLarge:
		return "The logging structure size is out of range",
			"Check the address of the g_rtedbg structure in the map file"
	case KindInvalidHeader:
		return "The logging structure header is not valid",
			"The structure is not initialized yet or the address is wrong"
	case KindFilterReenabled:
		return "Message filtering was re-enabled while data was being transferred",
			"The snapshot may be inconsistent; repeat the transfer"
	case KindFeatureDisabled:
		return "The requested feature is not enabled in the firmware",
			"Enable it in the RTEdbg configuration and rebuild the firmware"
	case KindStorage:
		return "Could not write the snapshot file",
			"Check that the output directory exists and the file is not open in another program"
	case KindBadInput:
		return "Invalid parameter", ""
	}
	return "Unexpected error", ""
}

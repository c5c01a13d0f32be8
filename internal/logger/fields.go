package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Device & Transaction
	// ========================================================================
	KeyDeviceID = "device_id" // mmd-rv1-... device identifier
	KeyTxnID    = "txn_id"    // transaction UUID
	KeyPosition = "position"  // line position within a transaction
	KeyLineType = "line_type" // classified line type (item, total, cash, ...)

	// ========================================================================
	// Serial Port
	// ========================================================================
	KeyPort     = "port"     // serial device path
	KeyBaud     = "baud"     // baud rate
	KeyRawLine  = "raw_line" // raw (pre-classification) line text

	// ========================================================================
	// Outbound Queue
	// ========================================================================
	KeyTopic      = "topic"       // outbound queue topic
	KeyJobID      = "job_id"      // outbound queue job id
	KeyURL        = "url"         // destination URL
	KeyAttempt    = "attempt"     // delivery attempt number
	KeyMaxRetries = "max_retries" // maximum retry attempts
	KeyQueueDepth = "queue_depth" // number of pending jobs

	// ========================================================================
	// HTTP / NVR
	// ========================================================================
	KeyStatus     = "status"      // HTTP status code
	KeyStatusMsg  = "status_msg"  // human-readable status message
	KeyEventID    = "event_id"    // NVR event id
	KeyCamera     = "camera"      // NVR camera name
	KeyLabel      = "label"       // NVR event label

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric error code
	KeySource     = "source"      // data source identifier
	KeyOperation  = "operation"   // sub-operation type for complex operations
	KeyBytesRead  = "bytes_read"  // actual bytes read
	KeySize       = "size"        // byte count
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// DeviceID returns a slog.Attr for the device identifier
func DeviceID(id string) slog.Attr {
	return slog.String(KeyDeviceID, id)
}

// TxnID returns a slog.Attr for the transaction id
func TxnID(id string) slog.Attr {
	return slog.String(KeyTxnID, id)
}

// Position returns a slog.Attr for the line position
func Position(p int) slog.Attr {
	return slog.Int(KeyPosition, p)
}

// LineType returns a slog.Attr for the classified line type
func LineType(t string) slog.Attr {
	return slog.String(KeyLineType, t)
}

// Port returns a slog.Attr for the serial device path
func Port(p string) slog.Attr {
	return slog.String(KeyPort, p)
}

// Baud returns a slog.Attr for the serial baud rate
func Baud(b int) slog.Attr {
	return slog.Int(KeyBaud, b)
}

// RawLine returns a slog.Attr for the raw line text
func RawLine(s string) slog.Attr {
	return slog.String(KeyRawLine, s)
}

// Topic returns a slog.Attr for the outbound queue topic
func Topic(t string) slog.Attr {
	return slog.String(KeyTopic, t)
}

// JobID returns a slog.Attr for the outbound queue job id
func JobID(id int64) slog.Attr {
	return slog.Int64(KeyJobID, id)
}

// URL returns a slog.Attr for a destination URL
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// QueueDepth returns a slog.Attr for the queue depth
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// EventID returns a slog.Attr for the NVR event id
func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// Camera returns a slog.Attr for the NVR camera name
func Camera(name string) slog.Attr {
	return slog.String(KeyCamera, name)
}

// Label returns a slog.Attr for the NVR event label
func Label(name string) slog.Attr {
	return slog.String(KeyLabel, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for a data source identifier
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns a slog.Attr for a sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// Size returns a slog.Attr for a byte count
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrInvalidPort     ErrorCode = "invalid_serial_port"
	ErrInvalidBaudRate ErrorCode = "invalid_baud_rate"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Serial link errors
	ErrPortOpenFailed  ErrorCode = "serial_open_failed"
	ErrPortWriteFailed ErrorCode = "serial_write_failed"
	ErrPortClosed      ErrorCode = "serial_port_closed"

	// Capture errors
	ErrCaptureStopped ErrorCode = "capture_stopped"
	ErrEmptyBuffer    ErrorCode = "empty_sample_buffer"

	// Export errors
	ErrExportFailed ErrorCode = "export_failed"
	ErrNoSamples    ErrorCode = "export_no_samples"

	// Dashboard errors
	ErrServeFailed ErrorCode = "dashboard_serve_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInvalidPort:     "Invalid serial port path",
	ErrInvalidBaudRate: "Invalid baud rate",
	ErrInvalidInterval: "Invalid interval value",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrPortOpenFailed:  "Failed to open serial port",
	ErrPortWriteFailed: "Failed to write to serial port",
	ErrPortClosed:      "Serial port is not open",
	ErrCaptureStopped:  "Capture is not running",
	ErrEmptyBuffer:     "Sample buffer is empty",
	ErrExportFailed:    "Failed to export samples",
	ErrNoSamples:       "No samples to export",
	ErrServeFailed:     "Failed to serve dashboard",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

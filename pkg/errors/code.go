package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Request parsing & routing errors
// 12000-12999: Process lifecycle errors
// 13000-13999: Workspace (source/binary file) errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// I/O errors (10100-10199)
	IOError         ErrorCode = 10100
	ConnWriteFailed ErrorCode = 10101
	ConnReadFailed  ErrorCode = 10102

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303
	MalformedJSON      ErrorCode = 10304

	// ========== Request Errors (11000-11999) ==========

	MalformedRequest    ErrorCode = 11000
	RequestTooLarge     ErrorCode = 11001
	RouteNotFound       ErrorCode = 11002
	RouteAlreadyExists  ErrorCode = 11003
	InvalidRoutePath    ErrorCode = 11004
	UnsupportedMedia    ErrorCode = 11005
	BufferPoolExhausted ErrorCode = 11100

	// ========== Process Lifecycle Errors (12000-12999) ==========

	ProcessTableFull   ErrorCode = 12000
	SpawnFailed        ErrorCode = 12001
	InvalidProcess     ErrorCode = 12002
	ChildUnavailable   ErrorCode = 12003
	ProcessWriteFailed ErrorCode = 12004
	ProcessReadFailed  ErrorCode = 12005
	ProcessStopFailed  ErrorCode = 12006

	// Toolchain selection (12100-12199)
	LanguageNotSupported ErrorCode = 12100
	CompilerNotSupported ErrorCode = 12101

	// ========== Workspace Errors (13000-13999) ==========

	SourceWriteFailed   ErrorCode = 13000
	WorkspaceInitFailed ErrorCode = 13001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// I/O
	IOError:         "I/O operation failed",
	ConnWriteFailed: "Failed to write to connection",
	ConnReadFailed:  "Failed to read from connection",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",
	MalformedJSON:      "JSON data is malformed",

	// Request
	MalformedRequest:    "Malformed request",
	RequestTooLarge:     "Request is too large",
	RouteNotFound:       "Route not found",
	RouteAlreadyExists:  "Route already exists",
	InvalidRoutePath:    "Route path must start with '/'",
	UnsupportedMedia:    "Content-Type must be application/json",
	BufferPoolExhausted: "No request buffer available",

	// Process
	ProcessTableFull:     "Process table is full",
	SpawnFailed:          "Failed to build and run program",
	InvalidProcess:       "Invalid parameter: pid",
	ChildUnavailable:     "Process is not reachable",
	ProcessWriteFailed:   "Failed to write to process",
	ProcessReadFailed:    "Failed to read from process",
	ProcessStopFailed:    "Failed to stop process",
	LanguageNotSupported: "Invalid language specified",
	CompilerNotSupported: "Invalid compiler type specified",

	// Workspace
	SourceWriteFailed:   "Failed to write source code to file",
	WorkspaceInitFailed: "Failed to prepare workspace directories",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RouteNotFound:
		return 404
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c >= 11000 && c < 11100: // Request errors
		return 400
	case c == InvalidParams:
		return 400
	case c == InvalidProcess, c == ChildUnavailable, c == ProcessWriteFailed, c == ProcessStopFailed:
		return 400
	case c == LanguageNotSupported, c == CompilerNotSupported:
		return 400
	default:
		return 500
	}
}

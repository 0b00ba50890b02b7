package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	// ConnID identifies one accepted connection on the dispatcher.
	ConnID key = "conn_id"
	// Slot is the process slot index a request operates on.
	Slot key = "slot"
)

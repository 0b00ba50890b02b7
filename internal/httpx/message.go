package httpx

import (
	"strings"
)

// Method is the request method.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodOptions
)

var methodNames = [...]string{
	MethodUnknown: "UNKNOWN",
	MethodGet:     "GET",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodOptions: "OPTIONS",
}

// ParseMethod maps a request-line token to a Method. Matching is exact.
func ParseMethod(s string) Method {
	for m, name := range methodNames {
		if Method(m) != MethodUnknown && name == s {
			return Method(m)
		}
	}
	return MethodUnknown
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return methodNames[MethodUnknown]
	}
	return methodNames[m]
}

// Version is the protocol version of a message.
type Version int

const (
	VersionUnknown Version = iota
	Version10
	Version11
	Version20
	Version30
)

var versionNames = [...]string{
	VersionUnknown: "",
	Version10:      "HTTP/1.0",
	Version11:      "HTTP/1.1",
	Version20:      "HTTP/2.0",
	Version30:      "HTTP/3.0",
}

// ParseVersion maps "HTTP/x.y" to a Version.
func ParseVersion(s string) Version {
	for v, name := range versionNames {
		if Version(v) != VersionUnknown && name == s {
			return Version(v)
		}
	}
	return VersionUnknown
}

func (v Version) String() string {
	if v <= VersionUnknown || int(v) >= len(versionNames) {
		return versionNames[Version11]
	}
	return versionNames[v]
}

// Header is one header line.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list with case-insensitive key lookup. Each
// key appears at most once; Set replaces in place.
type Headers struct {
	items []Header
}

// Get returns the value of the first header whose key matches case-insensitively.
func (h *Headers) Get(key string) (string, bool) {
	for _, it := range h.items {
		if strings.EqualFold(it.Key, key) {
			return it.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set replaces the first header matching key case-insensitively, dropping the
// rest, or appends it when absent. The original key spelling is kept on replace.
func (h *Headers) Set(key, value string) {
	idx := -1
	kept := h.items[:0]
	for _, it := range h.items {
		if strings.EqualFold(it.Key, key) {
			if idx >= 0 {
				continue
			}
			idx = len(kept)
			it.Value = value
		}
		kept = append(kept, it)
	}
	h.items = kept
	if idx < 0 {
		h.items = append(h.items, Header{Key: key, Value: value})
	}
}

// Del removes every header matching key.
func (h *Headers) Del(key string) {
	kept := h.items[:0]
	for _, it := range h.items {
		if !strings.EqualFold(it.Key, key) {
			kept = append(kept, it)
		}
	}
	h.items = kept
}

// Len returns the number of header lines.
func (h *Headers) Len() int {
	return len(h.items)
}

// All returns the headers in insertion order. The slice must not be modified.
func (h *Headers) All() []Header {
	return h.items
}

// Clone returns an independent copy.
func (h *Headers) Clone() Headers {
	out := Headers{items: make([]Header, len(h.items))}
	copy(out.items, h.items)
	return out
}

// MaxQueryParams bounds the number of query parameters accepted per request.
const MaxQueryParams = 10

// Param is one key=value query pair.
type Param struct {
	Key   string
	Value string
}

// QueryParams is the ordered list of query parameters of a request.
type QueryParams struct {
	items []Param
}

// Add appends a parameter. It fails once MaxQueryParams entries are held.
func (q *QueryParams) Add(key, value string) error {
	if len(q.items) >= MaxQueryParams {
		return ErrTooManyParams
	}
	q.items = append(q.items, Param{Key: key, Value: value})
	return nil
}

// Get returns the value of the first parameter named key. Keys are case-sensitive.
func (q *QueryParams) Get(key string) (string, bool) {
	for _, p := range q.items {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Len returns the number of parameters.
func (q *QueryParams) Len() int {
	return len(q.items)
}

// All returns the parameters in order. The slice must not be modified.
func (q *QueryParams) All() []Param {
	return q.items
}

// Request is a parsed HTTP request. Body aliases the buffer it was parsed
// from and is only valid until that buffer is released.
type Request struct {
	Method  Method
	Target  string
	Path    string
	Query   QueryParams
	Version Version
	Header  Headers
	Body    []byte
}

// ContentLength returns the body length.
func (r *Request) ContentLength() int {
	return len(r.Body)
}

// Response is an HTTP response ready to be serialized.
type Response struct {
	Status  int
	Version Version
	Header  Headers
	Body    []byte
}

// NewResponse creates an HTTP/1.1 response with the given status code.
func NewResponse(status int) *Response {
	return &Response{Status: status, Version: Version11}
}

// SetBody sets the body and its Content-Type.
func (r *Response) SetBody(contentType string, body []byte) *Response {
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Body = body
	return r
}

// Text sets a plain text body.
func (r *Response) Text(s string) *Response {
	return r.SetBody("text/plain; charset=utf-8", []byte(s))
}

// JSON sets an application/json body.
func (r *Response) JSON(body []byte) *Response {
	return r.SetBody("application/json", body)
}

// AllowCORS sets the permissive cross-origin headers every response carries.
func (r *Response) AllowCORS() *Response {
	r.Header.Set("Access-Control-Allow-Origin", "*")
	r.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	r.Header.Set("Access-Control-Allow-Headers", "*")
	return r
}

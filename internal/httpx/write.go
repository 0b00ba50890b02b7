package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// AppendTo serializes the response onto dst. Content-Length is derived from
// the body unless the status forbids a body.
func (r *Response) AppendTo(dst []byte) []byte {
	dst = append(dst, r.Version.String()...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(r.Status), 10)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(r.Status)...)
	dst = append(dst, "\r\n"...)

	for _, h := range r.Header.All() {
		if strings.EqualFold(h.Key, "Content-Length") {
			continue
		}
		dst = append(dst, h.Key...)
		dst = append(dst, ": "...)
		dst = append(dst, h.Value...)
		dst = append(dst, "\r\n"...)
	}
	if bodyAllowed(r.Status) {
		dst = append(dst, "Content-Length: "...)
		dst = strconv.AppendInt(dst, int64(len(r.Body)), 10)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	if bodyAllowed(r.Status) {
		dst = append(dst, r.Body...)
	}
	return dst
}

// Bytes serializes the response into a new slice.
func (r *Response) Bytes() []byte {
	return r.AppendTo(make([]byte, 0, 128+len(r.Body)))
}

// StatusText returns the reason phrase for code, "Unknown" when there is none.
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

func bodyAllowed(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified && status >= 200
}

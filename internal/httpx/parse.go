package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrIncomplete means more bytes are needed before the request can be parsed.
	ErrIncomplete = errors.New("httpx: incomplete request")
	// ErrMalformed means the bytes can never form a valid request.
	ErrMalformed = errors.New("httpx: malformed request")
	// ErrTooManyParams means the query string holds more than MaxQueryParams pairs.
	ErrTooManyParams = errors.New("httpx: too many query parameters")
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ParseRequest parses one request from raw. It returns ErrIncomplete while the
// header block or the Content-Length bytes of body have not fully arrived, and
// an error wrapping ErrMalformed when raw cannot be a request.
func ParseRequest(raw []byte) (*Request, error) {
	req := &Request{}
	if _, err := parseRaw(raw, req); err != nil {
		return nil, err
	}
	return req, nil
}

// parseRaw fills req from raw and returns the number of bytes consumed.
func parseRaw(raw []byte, req *Request) (int, error) {
	crs := 0

	// request line
	lf := bytes.IndexByte(raw, '\n')
	if lf == -1 {
		return 0, ErrIncomplete
	}
	if err := parseRequestLine(string(trimCR(raw[:lf])), req); err != nil {
		return 0, err
	}
	crs = lf + 1

	// header lines, terminated by an empty line
	contentLength := -1
	for {
		if crs >= len(raw) {
			return 0, ErrIncomplete
		}
		lf = bytes.IndexByte(raw[crs:], '\n')
		if lf == -1 {
			return 0, ErrIncomplete
		}
		line := trimCR(raw[crs : crs+lf])
		crs += lf + 1
		if len(line) == 0 {
			break
		}

		key, value, err := parseHeaderLine(string(line))
		if err != nil {
			return 0, err
		}
		req.Header.Set(key, value)

		if strings.EqualFold(key, "Content-Length") {
			n, convErr := strconv.Atoi(value)
			if convErr != nil || n < 0 {
				return 0, malformed("invalid Content-Length %q", value)
			}
			if contentLength >= 0 && contentLength != n {
				return 0, malformed("conflicting Content-Length")
			}
			contentLength = n
		}
	}

	// body
	switch {
	case contentLength > 0:
		if crs+contentLength > len(raw) {
			return 0, ErrIncomplete
		}
		req.Body = raw[crs : crs+contentLength]
		crs += contentLength
	case contentLength < 0 && crs < len(raw):
		// no Content-Length: whatever arrived with the headers is the body
		req.Body = raw[crs:]
		crs = len(raw)
	}
	return crs, nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

func parseRequestLine(line string, req *Request) error {
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return malformed("request line %q", line)
	}
	target, version, ok := strings.Cut(rest, " ")
	if !ok {
		return malformed("request line %q", line)
	}

	req.Method = ParseMethod(method)
	req.Version = ParseVersion(TrimOWS(version))
	if req.Version == VersionUnknown {
		return malformed("unsupported version %q", version)
	}
	if !strings.HasPrefix(target, "/") {
		return malformed("request target %q", target)
	}
	req.Target = target

	path, rawQuery, hasQuery := strings.Cut(target, "?")
	req.Path = path
	if hasQuery {
		query, err := ParseQuery(rawQuery)
		if err != nil {
			return err
		}
		req.Query = query
	}
	return nil
}

// parseHeaderLine splits "Key: Value", trimming whitespace and one pair of
// surrounding double quotes from each side.
func parseHeaderLine(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", malformed("header line %q", line)
	}
	key = Unquote(TrimOWS(key))
	value = Unquote(TrimOWS(value))
	if key == "" {
		return "", "", malformed("empty header key")
	}
	return key, value, nil
}

// ParseQuery parses "a=1&b=2". Every pair needs a key, '=' and a value, and at
// most MaxQueryParams pairs are accepted. Values are percent-decoded.
func ParseQuery(raw string) (QueryParams, error) {
	var q QueryParams
	if raw == "" {
		return q, nil
	}
	for _, pair := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" || value == "" {
			return QueryParams{}, malformed("query pair %q", pair)
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return QueryParams{}, malformed("query key %q", key)
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return QueryParams{}, malformed("query value %q", value)
		}
		if err := q.Add(decodedKey, decodedValue); err != nil {
			return QueryParams{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	return q, nil
}

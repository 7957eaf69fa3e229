package main

import (
	"bytes"
	"fmt"
	"strings"
)

// byteRange is an offset/length pair into a borrowed buffer -- the
// parser never copies or validates UTF-8, it only records where each
// field lives.
type byteRange struct {
	start, length int
}

var crlf = []byte{'\r', '\n'}

// HTTPRequest is a zero-copy view of an HTTP/1.1 request framed over a
// TCP segment's payload: method/path/version/headers/body are all
// byteRanges into the same backing buffer.
type HTTPRequest struct {
	buf     []byte
	method  byteRange
	path    byteRange
	version byteRange
	headers []byteRange
	body    byteRange
}

// ParseHTTPRequest splits buf into its request-line, header, and body
// ranges by CRLF boundaries. It does not validate the method, require
// well-formed headers, or reject a missing trailing blank line -- a
// short or malformed buffer yields empty trailing ranges, except that
// any text after the last CRLF becomes the body even when no blank
// line precedes it.
func ParseHTTPRequest(buf []byte) *HTTPRequest {
	req := &HTTPRequest{buf: buf}

	firstLineEnd := bytes.Index(buf, crlf)
	if firstLineEnd < 0 {
		firstLineEnd = len(buf)
	}
	firstLine := buf[:firstLineEnd]

	idx := 0
	req.method, idx = nextSpaceField(firstLine, idx)
	req.path, idx = nextSpaceField(firstLine, idx)
	req.version, _ = nextSpaceField(firstLine, idx)

	lineStart := firstLineEnd + len(crlf)
	if lineStart > len(buf) {
		lineStart = len(buf)
	}

	for lineStart < len(buf) {
		rel := bytes.Index(buf[lineStart:], crlf)
		if rel < 0 {
			break
		}
		lineEnd := lineStart + rel
		if lineEnd == lineStart {
			lineStart = lineEnd + len(crlf)
			break
		}
		req.headers = append(req.headers, byteRange{start: lineStart, length: lineEnd - lineStart})
		lineStart = lineEnd + len(crlf)
	}

	req.body = byteRange{start: lineStart, length: len(buf) - lineStart}
	return req
}

// nextSpaceField reads up to the next space (or end of line) starting
// at idx and returns the field plus the index just past the space.
func nextSpaceField(line []byte, idx int) (byteRange, int) {
	if idx > len(line) {
		idx = len(line)
	}
	rel := bytes.IndexByte(line[idx:], ' ')
	var end int
	if rel < 0 {
		end = len(line)
	} else {
		end = idx + rel
	}
	r := byteRange{start: idx, length: end - idx}
	next := end + 1
	if next > len(line) {
		next = len(line)
	}
	return r, next
}

func (r *HTTPRequest) read(br byteRange) string {
	if br.start < 0 || br.start+br.length > len(r.buf) {
		return ""
	}
	return string(r.buf[br.start : br.start+br.length])
}

func (r *HTTPRequest) Method() string  { return r.read(r.method) }
func (r *HTTPRequest) Path() string    { return r.read(r.path) }
func (r *HTTPRequest) Version() string { return r.read(r.version) }
func (r *HTTPRequest) Body() string    { return r.read(r.body) }

func (r *HTTPRequest) Headers() []string {
	out := make([]string, len(r.headers))
	for i, h := range r.headers {
		out[i] = r.read(h)
	}
	return out
}

func (r *HTTPRequest) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP request\nMethod: %s\nPath: %s\nVersion: %s\n", r.Method(), r.Path(), r.Version())
	for _, h := range r.Headers() {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	fmt.Fprintf(&sb, "Body: %s", r.Body())
	return sb.String()
}

// HTTPResponseOK is the canned 200 response the original application
// layer sends on every successfully-routed request -- no body.
func HTTPResponseOK() *NetworkBuffer {
	const response = "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	return BufferFrom([]byte(response))
}

// BuildHTTPResponse is the general-purpose response builder used for
// anything other than the canned 200 -- specifically the 400 returned
// for a request body that fails to decode as JSON (spec.md's resolved
// Open Question on the original's unwrap-that-panics behavior).
func BuildHTTPResponse(status int, reason string, headers map[string]string, body []byte) *NetworkBuffer {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(body))
	for k, v := range headers {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, v)
	}
	sb.WriteString("\r\n")
	buf := BufferFrom([]byte(sb.String()))
	if len(body) > 0 {
		buf.Append(body)
	}
	return buf
}

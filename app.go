package main

import (
	"encoding/json"
	"log"
)

// ReqPath is the path extractor: always succeeds.
type ReqPath string

func extractPath(req *HTTPRequest) (ReqPath, error) {
	return ReqPath(req.Path()), nil
}

// extractBody[T] is the body extractor: decodes the request body as
// JSON into T. A decode failure is returned as an error rather than
// panicking -- spec.md's resolved Open Question on the original's
// unwrap-on-malformed-JSON behavior.
func extractBody[T any](req *HTTPRequest) (T, error) {
	var v T
	err := json.Unmarshal([]byte(req.Body()), &v)
	return v, err
}

// trigger extracts T from req and, on success, calls handler with it;
// on extraction failure it returns 400 instead of calling handler at
// all. This is the generic stand-in for the original's trait-based
// "any function from any extractable-from-request type to response".
func trigger[T any](req *HTTPRequest, extract func(*HTTPRequest) (T, error), handler func(T) *NetworkBuffer) *NetworkBuffer {
	val, err := extract(req)
	if err != nil {
		log.Printf("%s%sExtraction failed: %v%s", ColorYellow, PrefixWarn, err, ColorReset)
		return BuildHTTPResponse(400, "Bad Request", nil, nil)
	}
	return handler(val)
}

// Dispatcher routes a parsed HTTPRequest to the handler registered for
// its path, and falls back to logging unmatched paths -- mirroring the
// original application layer's match-on-path-then-trigger shape.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnRequest is the entry point the TCP/HTTP handler calls for every
// request segment that arrives with application data.
func (d *Dispatcher) OnRequest(req *HTTPRequest) *NetworkBuffer {
	switch req.Path() {
	case "/data":
		return trigger(req, extractPath, onData)
	case "/req":
		return trigger(req, extractBody[reqPayload], onReq)
	default:
		log.Printf("%s%sUnmatched path: %s%s", ColorGray, PrefixHTTP, req.Path(), ColorReset)
		return HTTPResponseOK()
	}
}

// onData just logs the path it was handed.
func onData(path ReqPath) *NetworkBuffer {
	log.Printf("%s%sON DATA: %s%s", ColorWhite, PrefixHTTP, path, ColorReset)
	return HTTPResponseOK()
}

// reqPayload is the expected shape of a /req body -- a direct
// transliteration of the original application layer's demo struct.
type reqPayload struct {
	Key1 string `json:"key1"`
	Key2 string `json:"key2"`
}

func onReq(body reqPayload) *NetworkBuffer {
	log.Printf("%s%sON REQ: %+v%s", ColorWhite, PrefixHTTP, body, ColorReset)
	return HTTPResponseOK()
}

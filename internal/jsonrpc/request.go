package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Request is a single call
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Validate checks the version and method members. A nil request, which
// is what a null batch element decodes to, is invalid.
func (r *Request) Validate() error {
	if r == nil {
		return errors.New("request is not an object")
	}
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %q", r.JSONRPC)
	}
	if r.Method == "" {
		return errors.New("method is required")
	}
	return nil
}

// IsNotification reports whether the request has no id member. The
// server sends no response to a notification.
func (r *Request) IsNotification() bool {
	return !r.ID.present
}

// DecodeParams decodes params into v. Params may be a single object or
// an array holding exactly one object.
func (r *Request) DecodeParams(v interface{}) error {
	params := trimWhitespace(r.Params)
	if len(params) == 0 {
		return errors.New("params are required")
	}

	if params[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(params, &list); err != nil {
			return fmt.Errorf("invalid params format: %w", err)
		}
		if len(list) != 1 {
			return fmt.Errorf("expected exactly one params object, got %d", len(list))
		}
		params = list[0]
	}

	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// ParseRequest decodes one request object
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// ParseBatchRequest decodes a body holding either one request or a batch
// array. The bool reports whether the body was an array. Batch elements
// are decoded one by one: an element that is not a request object (null,
// a number, a malformed object) becomes a nil entry so the caller can
// answer it with Invalid Request without failing the whole batch.
func ParseBatchRequest(data []byte) ([]*Request, bool, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, false, ErrInvalidRequest
	}

	if data[0] != '[' {
		req, err := ParseRequest(data)
		if err != nil {
			return nil, false, err
		}
		return []*Request{req}, false, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, true, fmt.Errorf("failed to parse batch request: %w", err)
	}
	if len(elements) == 0 {
		return nil, true, ErrInvalidRequest
	}

	requests := make([]*Request, len(elements))
	for i, raw := range elements {
		raw = trimWhitespace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		if req, err := ParseRequest(raw); err == nil {
			requests[i] = req
		}
	}
	return requests, true, nil
}

func trimWhitespace(data []byte) []byte {
	return bytes.TrimLeft(data, " \t\r\n")
}

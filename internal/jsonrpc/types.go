package jsonrpc

import "encoding/json"

// Version is the only protocol version accepted
const Version = "2.0"

// Error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeServerError is the first of the implementation defined codes
	CodeServerError = -32000

	// CodeFetchFailed is returned when a consolidated backend fetch fails
	CodeFetchFailed = CodeServerError

	// CodeRecordNotFound is returned by the *OrThrow methods
	CodeRecordNotFound = -32001
)

// ID is a request id: a string, a number or null. A request without an
// id member is a notification.
type ID struct {
	value   interface{}
	present bool
}

// NewIDNull returns the null id used for errors that cannot be tied to a request
func NewIDNull() ID {
	return ID{present: true}
}

// Value returns the decoded id
func (id ID) Value() interface{} {
	return id.value
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. It is only called when the
// id member exists, including an explicit null.
func (id *ID) UnmarshalJSON(data []byte) error {
	id.present = true
	return json.Unmarshal(data, &id.value)
}

// Error is the error member of a response
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates an error without data
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error carrying data. Data that cannot be
// marshaled is left out.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	e := NewError(code, message)
	if data == nil {
		return e
	}
	if raw, err := json.Marshal(data); err == nil {
		e.Data = raw
	}
	return e
}

// Errors with fixed messages
var (
	ErrParse          = NewError(CodeParseError, "Parse error")
	ErrInvalidRequest = NewError(CodeInvalidRequest, "Invalid Request")
	ErrMethodNotFound = NewError(CodeMethodNotFound, "Method not found")
)

// Package wire implements the OCPP-J frame codec shared by both protocol
// versions: JSON arrays [2,id,action,payload], [3,id,payload] and
// [4,id,code,description,details].
package wire

import (
	"encoding/json"
	"fmt"
)

type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Protocol error codes defined by OCPP-J.
const (
	ErrNotImplemented                = "NotImplemented"
	ErrNotSupported                  = "NotSupported"
	ErrInternalError                 = "InternalError"
	ErrProtocolError                 = "ProtocolError"
	ErrSecurityError                 = "SecurityError"
	ErrFormationViolation            = "FormationViolation"
	ErrPropertyConstraintViolation   = "PropertyConstraintViolation"
	ErrOccurrenceConstraintViolation = "OccurrenceConstraintViolation"
	ErrTypeConstraintViolation       = "TypeConstraintViolation"
	ErrGenericError                  = "GenericError"
)

// Frame is one decoded OCPP message.
type Frame struct {
	Type      MessageType
	MessageID string

	// Call only.
	Action  string
	Payload json.RawMessage

	// CallError only.
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// DecodeError describes a rejected frame. MessageID is set when the id could
// be recovered, in which case the session replies with a FormationViolation
// CALLERROR; otherwise the frame is dropped.
type DecodeError struct {
	MessageID string
	Reason    string
}

func (e *DecodeError) Error() string {
	return "invalid ocpp frame: " + e.Reason
}

// Decode parses raw bytes into a Frame, enforcing the shape rules of the
// 3- and 4-element array formats.
func Decode(data []byte) (*Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, &DecodeError{Reason: "not a JSON array"}
	}
	if len(elems) < 3 || len(elems) > 5 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unexpected element count %d", len(elems))}
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, &DecodeError{Reason: "message type is not an integer"}
	}

	// The message id is recoverable for error reporting even when the rest
	// of the frame is malformed.
	var msgID string
	if err := json.Unmarshal(elems[1], &msgID); err != nil {
		return nil, &DecodeError{Reason: "message id is not a string"}
	}

	f := &Frame{Type: MessageType(msgType), MessageID: msgID}

	switch f.Type {
	case Call:
		if len(elems) != 4 {
			return nil, &DecodeError{MessageID: msgID, Reason: "CALL must have 4 elements"}
		}
		if err := json.Unmarshal(elems[2], &f.Action); err != nil {
			return nil, &DecodeError{MessageID: msgID, Reason: "action is not a string"}
		}
		f.Payload = elems[3]
	case CallResult:
		if len(elems) != 3 {
			return nil, &DecodeError{MessageID: msgID, Reason: "CALLRESULT must have 3 elements"}
		}
		f.Payload = elems[2]
	case CallError:
		if len(elems) != 5 {
			return nil, &DecodeError{MessageID: msgID, Reason: "CALLERROR must have 5 elements"}
		}
		if err := json.Unmarshal(elems[2], &f.ErrorCode); err != nil {
			return nil, &DecodeError{MessageID: msgID, Reason: "error code is not a string"}
		}
		if err := json.Unmarshal(elems[3], &f.ErrorDescription); err != nil {
			return nil, &DecodeError{MessageID: msgID, Reason: "error description is not a string"}
		}
		f.ErrorDetails = elems[4]
	default:
		return nil, &DecodeError{MessageID: msgID, Reason: fmt.Sprintf("unknown message type %d", msgType)}
	}

	return f, nil
}

// MarshalCall encodes [2, messageId, action, payload].
func MarshalCall(messageID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(Call), messageID, action, payload})
}

// MarshalCallResult encodes [3, messageId, payload].
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(CallResult), messageID, payload})
}

// MarshalCallError encodes [4, messageId, errorCode, errorDescription, errorDetails].
func MarshalCallError(messageID, code, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(CallError), messageID, code, description, details})
}

// Error is a protocol-level error a handler or dispatcher returns instead of
// a response payload. It maps directly onto a CALLERROR frame.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

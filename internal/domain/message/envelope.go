package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event tags understood by the auth service.
const (
	EventRegister = "register_request"
	EventLogin    = "login_request"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Payload holds the request fields that travel next to the event tag.
type Payload map[string]any

// String returns the field as a string, or "" when it is absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Request is the body published to the durable work queue.
// On the wire the payload fields are flattened beside "event":
//
//	{"event": "login_request", "email": "...", "password": "..."}
//
// The correlation id and reply-to destination are message properties, not body fields.
type Request struct {
	Event   string
	Payload Payload
}

var errMissingEvent = errors.New("missing event tag")

func (r Request) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+1)
	for k, v := range r.Payload {
		flat[k] = v
	}
	flat["event"] = r.Event
	return json.Marshal(flat)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if flat == nil {
		return errMissingEvent
	}

	raw, ok := flat["event"]
	if !ok {
		return errMissingEvent
	}
	var event string
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("event tag: %w", err)
	}
	delete(flat, "event")

	payload := make(Payload, len(flat))
	for k, v := range flat {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		payload[k] = val
	}

	r.Event = event
	r.Payload = payload
	return nil
}

// Response is the body published back to the reply-to destination.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`

	// CorrelationID is copied from the message properties of the delivery
	// that carried this response.
	CorrelationID string `json:"-"`
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

func Success(msg string) Response {
	return Response{Status: StatusSuccess, Message: msg}
}

func Failure(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}

package mesh

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseSuffix turns a request topic into its reply topic.
const ResponseSuffix = ":response"

const (
	TopicGetAllTasks     = "API/GET/getAllTasks"
	TopicCreateTask      = "API/POST/createTask"
	TopicBulkCreateTasks = "API/POST/bulkCreateTasks"
	TopicLogin           = "API/POST/login"
	TopicSignin          = "API/POST/signin"
)

// Outcome marks a reply as a success or a failure.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Envelope is the unit exchanged over the bus. Requests carry Topic,
// CorrelationID and Payload; replies add ResponseType and, on failure, Error.
// Error is a pointer so that an absent message and an empty one stay distinct.
type Envelope struct {
	Topic         string          `json:"topic" cbor:"topic"`
	CorrelationID string          `json:"correlationId,omitempty" cbor:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty" cbor:"payload,omitempty"`
	ResponseType  Outcome         `json:"responseType,omitempty" cbor:"responseType,omitempty"`
	Error         *string         `json:"error,omitempty" cbor:"error,omitempty"`
}

// IsReply reports whether the envelope travels on a reply topic.
func (e Envelope) IsReply() bool { return IsResponse(e.Topic) }

// Reply builds the success reply for a request envelope.
func (e Envelope) Reply(payload json.RawMessage) Envelope {
	return Envelope{
		Topic:         ResponseTopic(e.Topic),
		CorrelationID: e.CorrelationID,
		Payload:       payload,
		ResponseType:  OutcomeSuccess,
	}
}

// ReplyError builds the error reply for a request envelope.
func (e Envelope) ReplyError(msg string) Envelope {
	return Envelope{
		Topic:         ResponseTopic(e.Topic),
		CorrelationID: e.CorrelationID,
		ResponseType:  OutcomeError,
		Error:         &msg,
	}
}

// ErrorMessage returns the error text of a reply, or "" when absent.
func (e Envelope) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}

// clone copies the mutable parts so subscribers never share buffers.
func (e Envelope) clone() Envelope {
	out := e
	if e.Payload != nil {
		out.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	if e.Error != nil {
		msg := *e.Error
		out.Error = &msg
	}
	return out
}

func ResponseTopic(topic string) string { return topic + ResponseSuffix }

func IsResponse(topic string) bool { return strings.HasSuffix(topic, ResponseSuffix) }

// RequestTopic strips the reply suffix, returning the originating topic.
func RequestTopic(topic string) string { return strings.TrimSuffix(topic, ResponseSuffix) }

// Topic is a parsed "<Namespace>/<Verb>/<Operation>" request topic.
type Topic struct {
	Namespace string
	Verb      string
	Operation string
}

func (t Topic) String() string { return t.Namespace + "/" + t.Verb + "/" + t.Operation }

// ParseTopic validates a request topic. Verbs are limited to GET and POST.
func ParseTopic(s string) (Topic, error) {
	parts := strings.Split(RequestTopic(s), "/")
	if len(parts) != 3 {
		return Topic{}, fmt.Errorf("mesh: topic %q must be <Namespace>/<Verb>/<Operation>", s)
	}
	for _, p := range parts {
		if p == "" {
			return Topic{}, fmt.Errorf("mesh: topic %q has an empty segment", s)
		}
	}
	if parts[1] != "GET" && parts[1] != "POST" {
		return Topic{}, fmt.Errorf("mesh: topic %q has unsupported verb %q", s, parts[1])
	}
	return Topic{Namespace: parts[0], Verb: parts[1], Operation: parts[2]}, nil
}

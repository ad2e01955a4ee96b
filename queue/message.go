// Package queue provides the queue-message abstraction between the platform
// transport and the workflow engine: a tagged message union, send/receive
// with an explicitly bound transport, and at-least-once batch processing
// with bounded retries.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/listforge/listforge/workflow"
)

// Type discriminates the message union.
type Type string

const (
	TypeCompile      Type = "compile"
	TypeBatchCompile Type = "batch-compile"
	TypeCacheWarm    Type = "cache-warm"
)

// Priority orders message handling on the transport.
type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
)

// Header carries the fields common to every message. Messages are immutable
// once created and owned by the queue until acknowledged.
type Header struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority,omitempty"`
}

// Message is the tagged union of queue payloads, dispatched on the "type"
// discriminator field.
type Message interface {
	// MessageType returns the union discriminator.
	MessageType() Type
	// Validate checks the payload shape before send or after decode.
	Validate() error

	header() *Header
}

// CompileMessage requests a single compilation.
type CompileMessage struct {
	Header
	RequestID string                 `json:"request_id"`
	Config    workflow.CompileConfig `json:"config"`
}

// NewCompileMessage creates a compile request message.
func NewCompileMessage(requestID string, cfg workflow.CompileConfig) *CompileMessage {
	return &CompileMessage{
		Header:    Header{Type: TypeCompile, Timestamp: time.Now()},
		RequestID: requestID,
		Config:    cfg,
	}
}

// MessageType implements Message.
func (m *CompileMessage) MessageType() Type { return TypeCompile }

// Validate implements Message. Config shape is deliberately not checked
// here: the workflow's validation step owns that failure so it is reported
// as a structured compilation result, not a decode error.
func (m *CompileMessage) Validate() error {
	return nil
}

func (m *CompileMessage) header() *Header { return &m.Header }

// BatchCompileMessage requests compilation of several configurations.
type BatchCompileMessage struct {
	Header
	Requests []workflow.BatchRequest `json:"requests"`
}

// NewBatchCompileMessage creates a batch compile request message.
func NewBatchCompileMessage(requests []workflow.BatchRequest) *BatchCompileMessage {
	return &BatchCompileMessage{
		Header:   Header{Type: TypeBatchCompile, Timestamp: time.Now()},
		Requests: requests,
	}
}

// MessageType implements Message.
func (m *BatchCompileMessage) MessageType() Type { return TypeBatchCompile }

// Validate implements Message. The request list must be non-empty; the
// configurations themselves are validated per request by the workflow so one
// bad config cannot reject its siblings.
func (m *BatchCompileMessage) Validate() error {
	if len(m.Requests) == 0 {
		return fmt.Errorf("batch-compile message requires at least one request")
	}
	return nil
}

func (m *BatchCompileMessage) header() *Header { return &m.Header }

// CacheWarmMessage requests cache population for several configurations.
type CacheWarmMessage struct {
	Header
	Configs []workflow.CompileConfig `json:"configs"`
}

// NewCacheWarmMessage creates a cache-warm request message.
func NewCacheWarmMessage(configs []workflow.CompileConfig) *CacheWarmMessage {
	return &CacheWarmMessage{
		Header:  Header{Type: TypeCacheWarm, Timestamp: time.Now()},
		Configs: configs,
	}
}

// MessageType implements Message.
func (m *CacheWarmMessage) MessageType() Type { return TypeCacheWarm }

// Validate implements Message.
func (m *CacheWarmMessage) Validate() error {
	if len(m.Configs) == 0 {
		return fmt.Errorf("cache-warm message requires at least one config")
	}
	return nil
}

func (m *CacheWarmMessage) header() *Header { return &m.Header }

// Encode serializes a message, stamping the discriminator and timestamp if
// the caller built the struct by hand.
func Encode(m Message) ([]byte, error) {
	h := m.header()
	h.Type = m.MessageType()
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode deserializes a message, dispatching on the type discriminator.
// Unknown types and empty payload lists are rejected.
func Decode(data []byte) (Message, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode message header: %w", err)
	}

	var msg Message
	switch h.Type {
	case TypeCompile:
		msg = &CompileMessage{}
	case TypeBatchCompile:
		msg = &BatchCompileMessage{}
	case TypeCacheWarm:
		msg = &CacheWarmMessage{}
	default:
		return nil, fmt.Errorf("unknown message type %q", h.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", h.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", h.Type, err)
	}
	return msg, nil
}

// Package channel delivers broker notifications to the host application
// that embeds the accounts pages (a native shell, a desktop browser, ...).
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Channel is an outbound notification sink. Nothing is read back.
type Channel interface {
	Send(ctx context.Context, message string, data any) error
}

// Envelope is the wire form of a notification.
type Envelope struct {
	Command   string `json:"command"`
	Data      any    `json:"data"`
	MessageID string `json:"messageId"`
}

// NewEnvelope wraps data for message with a fresh message id.
func NewEnvelope(message string, data any) Envelope {
	return Envelope{
		Command:   message,
		Data:      data,
		MessageID: uuid.NewString(),
	}
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", e.Command, err)
	}
	return b, nil
}

// Null discards every message.
type Null struct{}

var _ Channel = Null{}

func (Null) Send(ctx context.Context, message string, data any) error { return nil }

// Message is a notification captured by Recorder.
type Message struct {
	Name string
	Data any
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

var _ Channel = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent sends return err. Messages are still recorded.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Send(ctx context.Context, message string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Name: message, Data: data})
	return r.err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Sent counts the recorded messages named message.
func (r *Recorder) Sent(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Name == message {
			n++
		}
	}
	return n
}

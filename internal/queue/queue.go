package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ContentType of every job message
const ContentType = "application/json"

// ErrInvalidMessage marks a payload that can never be processed
var ErrInvalidMessage = errors.New("invalid job message")

// Message is the only thing that travels through the queue. All job state
// lives in the job store.
type Message struct {
	JobID string `json:"job_id"`
}

// Encode serialises a message for publishing
func Encode(jobID string) ([]byte, error) {
	return json.Marshal(Message{JobID: jobID})
}

// Decode parses and validates a message body
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return Message{}, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidMessage, msg.JobID)
	}
	return msg, nil
}

// Publisher hands a job reference to the broker. Publish returns only after
// the broker accepted the message durably.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// Delivery is one received message. Exactly one of Ack or Nack must be called.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Consumer yields deliveries until ctx is done or the broker closes the stream
type Consumer interface {
	Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error)
}

// Package publisher defines the completion-notification contract fulfilled
// by the Pub/Sub and in-memory implementations.
package publisher

import "context"

// Publisher delivers job-completion events to downstream consumers.
type Publisher interface {
	// Publish sends the payload to the topic and returns the message id.
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

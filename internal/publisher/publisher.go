// Package publisher announces finished crawl-and-persist runs to downstream
// consumers.
package publisher

import "context"

// Publisher delivers a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Attributed payloads contribute message attributes.
type Attributed interface {
	Attributes() map[string]string
}

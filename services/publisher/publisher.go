package publisher

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to the stream
	Publish(message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// Noop discards every message, used when no stream is configured
type Noop struct{}

// Publish does nothing
func (Noop) Publish([]byte) error { return nil }

// TrimStreams does nothing
func (Noop) TrimStreams() error { return nil }

// Close does nothing
func (Noop) Close() error { return nil }

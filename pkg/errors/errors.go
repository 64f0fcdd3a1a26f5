package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeStatus represents a non-success HTTP status from a source
	ErrorTypeStatus ErrorType = "status"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeTimeout represents a source that did not finish before the deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeExtraction represents a panic or unexpected failure while extracting listings
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStorage represents persistence errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

var (
	// ErrNoSources is returned when a search is started without any configured source
	ErrNoSources = errors.New("no sources configured")
	// ErrEmptyQuery is returned when a search is started with a blank query
	ErrEmptyQuery = errors.New("search query cannot be empty")
)

// SourceError represents a source-specific error
type SourceError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *SourceError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	default:
		return false
	}
}

// New creates a new SourceError
func New(errType ErrorType, source, message string, err error) *SourceError {
	return &SourceError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(source, message string, err error) *SourceError {
	return New(ErrorTypeNetwork, source, message, err)
}

// NewStatus creates an error for an unexpected response status
func NewStatus(source string, status int, err error) *SourceError {
	return New(ErrorTypeStatus, source, fmt.Sprintf("unexpected status code: %d", status), err)
}

// NewParsing creates a new parsing error
func NewParsing(source, message string, err error) *SourceError {
	return New(ErrorTypeParsing, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *SourceError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewTimeout creates an error for a source abandoned at the deadline
func NewTimeout(source string, deadline time.Duration) *SourceError {
	return New(ErrorTypeTimeout, source, fmt.Sprintf("did not finish within %v", deadline), nil)
}

// NewExtraction creates an error for a failure inside the extraction step
func NewExtraction(source, message string, err error) *SourceError {
	return New(ErrorTypeExtraction, source, message, err)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *SourceError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *SourceError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewStorage creates a new storage error
func NewStorage(message string, err error) *SourceError {
	return New(ErrorTypeStorage, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *SourceError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsRetryable reports whether err carries a SourceError worth retrying
func IsRetryable(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.IsRetryable()
}

// TypeOf returns the ErrorType of err, or an empty type if err is not a SourceError
func TypeOf(err error) ErrorType {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

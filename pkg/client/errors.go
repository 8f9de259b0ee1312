package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of failed core system calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 responses from the core system.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents a 200 response whose body could not be decoded.
	ErrorClassMalformed ErrorClass = "malformed"
)

// ErrEmptyBatch is returned when FetchBatch is called without identifiers.
var ErrEmptyBatch = errors.New("empty imei batch")

// CoreError is a failed imei-batch call. Every class is a batch-level failure
// that the caller may retry.
type CoreError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("core %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("core %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err, or "" if err is not a CoreError.
func ClassOf(err error) ErrorClass {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Class
	}
	return ""
}

// classifyStatus maps a non-200 HTTP status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/2xx/3xx other than 200 are unexpected from imei-batch.
		return ErrorClassServer
	}
}

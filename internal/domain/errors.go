package domain

import "errors"

var (
	// ErrInvalidURL rejects input that does not parse as an absolute
	// http(s) URL. Surfaced to the user layer as a validation error.
	ErrInvalidURL = errors.New("invalid url")

	// ErrSourceUnavailable marks a transient reputation-source failure.
	// The resolver converts it to an unknown verdict; it never reaches
	// callers of Check.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrDeliveryFailed marks a transport delivery failure for a single
	// subscriber. Retried by the dispatcher, never aborts the fan-out.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrNotFound is returned by repositories for absent records.
	ErrNotFound = errors.New("not found")
)

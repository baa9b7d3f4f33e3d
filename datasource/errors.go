package datasource

import (
	"errors"
)

var (
	// ErrNoReading means the provider answered but had nothing usable for the
	// identifier, e.g. an unknown station or a non-numeric AQI.
	ErrNoReading = errors.New("no reading available")

	// ErrInvalidAPIKey means the provider rejected the credential
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrMissingAPIKey means no credential was configured at all
	ErrMissingAPIKey = errors.New("API key missing")
)

// ProviderError ties an error to the provider that produced it. Its message
// carries no location so identical failures across locations compare equal.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerErr(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

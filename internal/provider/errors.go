package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport error")
	// ErrDataShape covers malformed payloads and instruments missing from a response.
	ErrDataShape = errors.New("unexpected data shape")
)

// FetchError is the single error type returned by Provider.Fetch.
type FetchError struct {
	Provider string
	Asset    string
	Kind     error
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s failed: %v", e.Provider, e.Asset, e.Cause)
}

func (e *FetchError) Unwrap() []error { return []error{e.Kind, e.Cause} }

// TransportError builds a FetchError of kind ErrTransport.
func TransportError(providerName string, asset AssetRef, cause error) error {
	return &FetchError{Provider: providerName, Asset: asset.AssetID, Kind: ErrTransport, Cause: cause}
}

// DataShapeError builds a FetchError of kind ErrDataShape.
func DataShapeError(providerName string, asset AssetRef, format string, args ...any) error {
	return &FetchError{Provider: providerName, Asset: asset.AssetID, Kind: ErrDataShape, Cause: fmt.Errorf(format, args...)}
}

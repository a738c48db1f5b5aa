package walletbridge

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure in the payment flow resolves to one of
// these conditions or to a provider error surfaced verbatim.
var (
	// ErrNoEligibleTab means no http/https page exists in the current
	// window to host the injected bridge.
	ErrNoEligibleTab = errors.New("no eligible http/https tab in the current window")

	// ErrWalletNotFound means no compatible wallet provider object is
	// present in the page.
	ErrWalletNotFound = errors.New("wallet provider not found")

	// ErrTimeout means no reply arrived within the operation budget.
	// Terminal for the single call; re-invoking issues a new correlation id.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrUnsupportedNetwork means a requirement names a network family no
	// registered mechanism can sign for.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrNoMatchingRequirement means a 402 advertised nothing compatible
	// with the connected wallet's networks and the requested scheme.
	ErrNoMatchingRequirement = errors.New("no payment requirement matches the connected wallet")
)

// ValidationError reports a 402 body entry that failed schema validation.
// Protocol mismatches are user-facing errors, never retried.
type ValidationError struct {
	Index int
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payment requirement %d failed validation: %v", e.Index, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ProviderError wraps an error raised by the underlying wallet provider
// (user rejection, wrong network, malformed params). The message is carried
// verbatim across the bridge; Code is the EIP-1193 error code when the
// provider supplied one.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

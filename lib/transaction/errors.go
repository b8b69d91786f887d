package transaction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind is the bounded set of ways a claim attempt can fail.
type Kind string

const (
	KindConfigurationMissing Kind = "ConfigurationMissing"
	KindNoClaimableBalance   Kind = "NoClaimableBalance"
	KindNetworkUnavailable   Kind = "NetworkUnavailable"
	KindUserRejected         Kind = "UserRejected"
	KindConfirmationTimeout  Kind = "ConfirmationTimeout"
	KindUnclassified         Kind = "UnclassifiedFailure"
)

var (
	// ErrUserRejected is returned by signing capabilities when the user declines to sign.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrConfirmationTimeout means the submission was not seen as confirmed before the poll deadline.
	// The transaction may still land.
	ErrConfirmationTimeout = errors.New("confirmation timed out, outcome unknown")
)

// ClaimError is a classified claim failure.
type ClaimError struct {
	Kind Kind
	Err  error
}

func (e *ClaimError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user for this failure.
func (e *ClaimError) Message() string {
	switch e.Kind {
	case KindConfigurationMissing:
		return "Configuration error: Mint authority not set. Please contact support."
	case KindNoClaimableBalance:
		return "No tokens available to claim."
	case KindNetworkUnavailable:
		return "Token mint failed. The network could not be reached, please try again."
	case KindUserRejected:
		return "Transaction rejected by user."
	case KindConfirmationTimeout:
		return "Transaction submitted but not yet confirmed. Check its status again before claiming again."
	default:
		if e.Err != nil {
			return "Token mint failed. " + e.Err.Error()
		}
		return "Token mint failed. An unknown error occurred."
	}
}

// NewClaimError wraps err with the given kind.
func NewClaimError(kind Kind, err error) *ClaimError {
	return &ClaimError{Kind: kind, Err: err}
}

// Classify narrows a raw failure into the claim taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var claimErr *ClaimError
	if errors.As(err, &claimErr) {
		return claimErr.Kind
	}

	switch {
	case errors.Is(err, ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, ErrConfirmationTimeout):
		return KindConfirmationTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetworkUnavailable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetworkUnavailable
	}

	return KindUnclassified
}

// AsClaimError returns err as a *ClaimError, classifying it when needed.
func AsClaimError(err error) *ClaimError {
	if err == nil {
		return nil
	}
	var claimErr *ClaimError
	if errors.As(err, &claimErr) {
		return claimErr
	}
	return NewClaimError(Classify(err), err)
}

// networkFailure classifies an error returned by a Network call. A cancelled call never
// reached a signing prompt, so it counts as the network being unavailable too.
func networkFailure(err error) *ClaimError {
	return NewClaimError(KindNetworkUnavailable, err)
}

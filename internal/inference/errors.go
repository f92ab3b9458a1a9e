package inference

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why an analysis failed. None of them are retried.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindTransport
	KindEmpty
	KindParse
	KindInvalid
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindEmpty:
		return "empty"
	case KindParse:
		return "parse"
	case KindInvalid:
		return "invalid"
	case KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// GenericMessage is what the user sees for every failure other than a
// configuration problem.
const GenericMessage = "Unable to process fingerprint. Ensure image is clear and try again."

var (
	ErrMissingCredential = errors.New("api key is missing; configure the environment")
	ErrNoData            = errors.New("analysis failed: no data returned")
	ErrUnparseable       = errors.New("could not parse JSON response from model")
)

// Error is returned by Client.Analyze for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind, or zero if err did not come from this
// package.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return 0
}

// UserMessage maps any analysis error onto the single message shown to the
// user. Configuration errors are shown verbatim; the cause of everything else
// only reaches the log.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindConfig {
		var ie *Error
		errors.As(err, &ie)
		return ie.Err.Error()
	}
	return GenericMessage
}

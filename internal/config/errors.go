package config

import (
	"errors"
	"fmt"
)

// Kind classifies a KernelError into one of the kernel's failure
// categories, so callers can branch with errors.Is/errors.As instead
// of sniffing strings.
type Kind int

const (
	// KindConfig covers invalid or missing configuration.
	KindConfig Kind = iota
	// KindContract covers violations of a user-supplied callback's contract
	// (bad SignalDraft, missing required field).
	KindContract
	// KindAdapter covers exchange/candle-fetcher/store adapter failures,
	// including AdapterTimeout and AdapterInvariantViolation.
	KindAdapter
	// KindRuntime covers ordinary runtime failures encountered mid-tick.
	KindRuntime
	// KindFatal covers unrecoverable failures that should stop a driver.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindContract:
		return "contract"
	case KindAdapter:
		return "adapter"
	case KindRuntime:
		return "runtime"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// KernelError is the error type returned by every kernel component. Op
// names the operation that failed (e.g. "gateway.getCandles"); Err is the
// underlying cause and is preserved for errors.Unwrap/errors.As.
type KernelError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *KernelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}

// NewKernelError wraps err with an operation name and kind.
func NewKernelError(kind Kind, op string, err error) *KernelError {
	return &KernelError{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a *KernelError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ke *KernelError
	if !errors.As(err, &ke) {
		return false
	}
	return ke.Kind == kind
}

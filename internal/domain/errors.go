package domain

import "errors"

// Configuration errors. These are fatal and never degraded.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrParityMismatch     = errors.New("embedding model does not match collection")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionNotReady = errors.New("collection not ready")
	ErrModelLoad          = errors.New("embedding model load failed")
)

// Runtime errors.
var (
	ErrModelNotLoaded = errors.New("embedding model not loaded")
	ErrEncode         = errors.New("encode failed")
	ErrLLMUnavailable = errors.New("language model backend unavailable")
	ErrLLMTimeout     = errors.New("language model request timed out")
	ErrEmptyCorpus    = errors.New("empty corpus")
	ErrSkippedRecord  = errors.New("record skipped")
	ErrEngineFailed   = errors.New("engine initialization failed")
)

// IsFatal reports whether err belongs to the fatal configuration class.
func IsFatal(err error) bool {
	for _, target := range []error{
		ErrInvalidConfig,
		ErrDimensionMismatch,
		ErrParityMismatch,
		ErrCollectionNotFound,
		ErrModelLoad,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

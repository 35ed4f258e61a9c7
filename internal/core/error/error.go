package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// TurnErrorMessage is returned to callers when a turn is aborted.
	TurnErrorMessage = "turn aborted"
)

// Kind classifies failures raised while processing a conversational turn.
type Kind string

const (
	KindClassification Kind = "ClassificationFailure"
	KindImageDecode    Kind = "ImageDecodeFailure"
	KindImageInference Kind = "ImageInferenceFailure"
	KindRetrieval      Kind = "RetrievalFailure"
	KindGeneration     Kind = "GenerationFailure"
	KindOrchestrator   Kind = "OrchestratorFailure"
)

// Sentinels so callers can match a kind with errors.Is regardless of wrapping.
var (
	ErrClassification = errors.New(string(KindClassification))
	ErrImageDecode    = errors.New(string(KindImageDecode))
	ErrImageInference = errors.New(string(KindImageInference))
	ErrRetrieval      = errors.New(string(KindRetrieval))
	ErrGeneration     = errors.New(string(KindGeneration))
	ErrOrchestrator   = errors.New(string(KindOrchestrator))
)

var sentinels = map[Kind]error{
	KindClassification: ErrClassification,
	KindImageDecode:    ErrImageDecode,
	KindImageInference: ErrImageInference,
	KindRetrieval:      ErrRetrieval,
	KindGeneration:     ErrGeneration,
	KindOrchestrator:   ErrOrchestrator,
}

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Wrap tags err with a failure kind. The message is the kind itself so logs
// stay greppable.
func Wrap(kind Kind, err error) *AppError {
	return &AppError{
		Err:     err,
		Status:  http.StatusInternalServerError,
		Message: string(kind),
		Kind:    kind,
	}
}

// Turn builds the error surfaced to callers when a turn is aborted.
func Turn(err error) *AppError {
	return &AppError{
		Err:     err,
		Status:  http.StatusInternalServerError,
		Message: TurnErrorMessage,
		Kind:    KindOrchestrator,
	}
}

// KindOf returns the kind of the first AppError in the chain, or "".
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether the target matches the underlying error, the kind
// sentinel, or the AppError itself.
func (e *AppError) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

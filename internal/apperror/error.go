// Package apperror is the structured error type shared by every context.
// Errors carry a Code, an optional context string, the wrapped cause and the
// stack at creation.
package apperror

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// AppError is a coded failure.
type AppError struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
	stack     []uintptr
}

// Option customises an AppError at construction.
type Option func(*AppError)

func WithMessage(message string) Option {
	return func(e *AppError) { e.Message = message }
}

// WithContext names what failed, e.g. a pool address or sink.
func WithContext(context string) Option {
	return func(e *AppError) { e.Context = context }
}

func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New builds an AppError. The message defaults to the catalog entry, then
// to the code itself.
func New(code Code, opts ...Option) *AppError {
	e := &AppError{
		Code:      code,
		Message:   catalog[code].message,
		Timestamp: time.Now(),
		stack:     callers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Message == "" {
		e.Message = string(code)
	}
	return e
}

// Validation reports a rejected argument or setting.
func Validation(code Code, context string) *AppError {
	return New(code, WithContext(context))
}

// Wrap attaches code to err. An AppError anywhere in the chain is returned
// as is, gaining context if it had none. Wrap(nil) is nil.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}
	return New(code, WithContext(context), WithCause(err))
}

// Error renders "CODE: message [context]: cause".
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Context != "" {
		fmt.Fprintf(&sb, " [%s]", e.Context)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *AppError) Unwrap() error { return e.cause }

// Is matches any AppError with the same code, so sentinel comparisons such
// as errors.Is(err, New(CodeCircuitOpen)) work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

// LogValue renders the error as a group when passed to a slog logger.
// Internal errors also carry their creation stack.
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("kind", e.Code.Kind().String()),
		slog.String("message", e.Message),
	}
	if e.Context != "" {
		attrs = append(attrs, slog.String("context", e.Context))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	if e.Code.Kind() == KindInternal && len(e.stack) > 0 {
		attrs = append(attrs, slog.String("stack", e.formatStack()))
	}
	return slog.GroupValue(attrs...)
}

func (e *AppError) formatStack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&sb, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func callers() []uintptr {
	var pcs [32]uintptr
	// Skip runtime.Callers, callers and New.
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode returns the code of the first AppError in err's chain, or
// CodeUnknownError.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// KindOf classifies err. Plain errors are internal.
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// IsExternal reports whether err came from a dependency outside the
// process. Callers own the retry policy for these.
func IsExternal(err error) bool {
	return KindOf(err) == KindExternal
}

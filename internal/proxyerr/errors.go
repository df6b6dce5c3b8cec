// Package proxyerr defines the pipeline's error taxonomy (spec §7).
package proxyerr

import "fmt"

// Kind discriminates the error taxonomy surfaced by the pipeline.
type Kind string

const (
	KindBadRequest            Kind = "bad_request"
	KindUnsupportedPayload    Kind = "unsupported_payload"
	KindClassifierUnavailable Kind = "classifier_unavailable"
	KindInferenceError        Kind = "inference_error"
	KindParseError            Kind = "parse_error"
	KindNoDecisionMatched     Kind = "no_decision_matched"
	KindUpstreamError         Kind = "upstream_error"
	KindConfigError           Kind = "config_error"
)

// Error is a kinded, wrapped error carried through the pipeline.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func BadRequest(format string, args ...any) *Error {
	return newf(KindBadRequest, format, args...)
}

func UnsupportedPayload(format string, args ...any) *Error {
	return newf(KindUnsupportedPayload, format, args...)
}

func ClassifierUnavailable(modelPath string, err error) *Error {
	return wrap(KindClassifierUnavailable, "model "+modelPath, err)
}

func InferenceError(msg string, err error) *Error {
	return wrap(KindInferenceError, msg, err)
}

func ParseError(msg string, err error) *Error {
	return wrap(KindParseError, msg, err)
}

func NoDecisionMatched() *Error {
	return newf(KindNoDecisionMatched, "no decision matched")
}

func UpstreamError(msg string, err error) *Error {
	return wrap(KindUpstreamError, msg, err)
}

func ConfigError(format string, args ...any) *Error {
	return newf(KindConfigError, format, args...)
}

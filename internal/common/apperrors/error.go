// Package apperrors provides chainable application errors that carry a failure kind,
// an HTTP status code and a user-facing message. Errors created from a template keep
// the template in their chain, so errors.Is against a sentinel matches every error
// derived from it.
package apperrors

// Kind classifies an error for callers that branch on the failure category rather
// than on a specific sentinel.
type Kind string

// KindUnknown is reported for errors that carry no classification.
const KindUnknown Kind = ""

// Error defines the interface for application errors. All methods that return Error
// leave the receiver untouched so that sentinels can be shared safely.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetStatusCode(int) Error               // sets HTTP status code for the error
	StatusCode() int                       // returns the current status code
	SetKind(Kind) Error                    // sets the failure kind
	Kind() Kind                            // returns the failure kind
	Prefix(string) Error                   // adds a prefix to the error message
	UnwrapAll() []error                    // returns all wrapped errors
}

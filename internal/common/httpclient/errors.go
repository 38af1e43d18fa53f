package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/herdbook/herdbook/internal/common/apperrors"
)

// Failure kinds reported by the transport.
const (
	KindNetworkUnavailable apperrors.Kind = "NetworkUnavailable"
	KindSessionExpired     apperrors.Kind = "SessionExpired"
	KindRequestFailed      apperrors.Kind = "RequestFailed"
	KindMalformedResponse  apperrors.Kind = "MalformedResponse"
	KindCanceled           apperrors.Kind = "Canceled"
	KindInvalidRequest     apperrors.Kind = "InvalidRequest"
)

const genericFailureMessage = "Something went wrong. Try again later."

var (
	ErrNetworkUnavailable = apperrors.New("Unable to connect to the server. Try again later.").SetKind(KindNetworkUnavailable)
	ErrSessionExpired     = apperrors.New("Your session has expired. Please sign in again.").SetKind(KindSessionExpired).SetStatusCode(http.StatusUnauthorized)
	ErrRequestFailed      = apperrors.New("The request failed.").SetKind(KindRequestFailed)
	ErrMalformedResponse  = apperrors.New("The server returned an unreadable response.").SetKind(KindMalformedResponse)
	ErrCanceled           = apperrors.New("The request was canceled.").SetKind(KindCanceled)
	ErrInvalidRequest     = apperrors.New("The request could not be prepared.").SetKind(KindInvalidRequest)
)

// KindOf returns the transport kind of err, or apperrors.KindUnknown.
func KindOf(err error) apperrors.Kind {
	return apperrors.KindOf(err)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	return apperrors.StatusCodeOf(err)
}

// UserMessage converts any error into text that is safe to show to a user.
// Classified errors carry their own message; anything else gets a generic one, so
// raw transport or decoder text never reaches the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae apperrors.Error
	if errors.As(err, &ae) && ae.Kind() != apperrors.KindUnknown {
		return ae.Error()
	}
	return genericFailureMessage
}

// errorBody is the error document the API sends with non-2xx responses.
type errorBody struct {
	Message *string `json:"message"`
	Error   *string `json:"error"`
}

// parsedError is the outcome of decoding an error body. When parsed is false the
// body carried no usable message and only the HTTP status is known.
type parsedError struct {
	message string
	parsed  bool
}

func parseErrorBody(raw []byte) parsedError {
	if len(raw) == 0 {
		return parsedError{}
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return parsedError{}
	}
	if body.Message != nil && *body.Message != "" {
		return parsedError{message: *body.Message, parsed: true}
	}
	if body.Error != nil && *body.Error != "" {
		return parsedError{message: *body.Error, parsed: true}
	}
	return parsedError{}
}

// messageOr returns the parsed message, or the fallback when nothing was parsed.
func (p parsedError) messageOr(fallback string) string {
	if p.parsed {
		return p.message
	}
	return fallback
}

// statusLine renders the response status as "404 Not Found".
func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

package publisher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a publish failure for retry decisions.
type ErrorKind int

const (
	// KindTransient failures may succeed on a later attempt.
	KindTransient ErrorKind = iota
	// KindAuth failures need the connection to be reauthorized.
	KindAuth
	// KindPermanent failures will not succeed without changing the content.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Error is returned by publishers for every failed publish.
type Error struct {
	Kind       ErrorKind
	Platform   string
	Op         string
	Message    string
	StatusCode int
	Code       int
	Type       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Platform, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, platform, op, message string) *Error {
	return &Error{Kind: kind, Platform: platform, Op: op, Message: message}
}

// KindOf reports the kind of err. Errors that did not come from a publisher
// are treated as transient.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

func IsAuth(err error) bool {
	return err != nil && KindOf(err) == KindAuth
}

func IsPermanent(err error) bool {
	return err != nil && KindOf(err) == KindPermanent
}

// KindForStatus maps an HTTP status to the default kind for that status.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindPermanent
	default:
		return KindTransient
	}
}

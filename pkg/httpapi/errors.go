package httpapi

import (
	"errors"
	"net/http"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

var (
	// ErrUnknownSession reports a session id with no open session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrBadRequest reports a request body that cannot be decoded.
	ErrBadRequest = errors.New("bad request")
	// ErrServerClosed reports a request arriving after Close.
	ErrServerClosed = errors.New("server closed")
)

// Error kinds reported for failures outside the device.
const (
	kindCopyFault      = "copy_fault"
	kindFileClosed     = "file_closed"
	kindUnknownSession = "unknown_session"
	kindBadRequest     = "bad_request"
	kindServerClosed   = "server_closed"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Errno string `json:"errno,omitempty"`
}

// errorKind extends device.Kind with the API's own failure classes.
func errorKind(err error) string {
	switch {
	case errors.Is(err, chardev.ErrCopyFault):
		return kindCopyFault
	case errors.Is(err, chardev.ErrFileClosed):
		return kindFileClosed
	case errors.Is(err, ErrUnknownSession):
		return kindUnknownSession
	case errors.Is(err, ErrBadRequest):
		return kindBadRequest
	case errors.Is(err, ErrServerClosed):
		return kindServerClosed
	default:
		return device.Kind(err)
	}
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind string) int {
	switch kind {
	case device.KindEmpty, device.KindExhausted, device.KindNotInitialized:
		return http.StatusConflict
	case device.KindInvalidSize, device.KindUnsupportedCommand, kindCopyFault, kindBadRequest:
		return http.StatusBadRequest
	case device.KindAllocationFailure:
		return http.StatusInsufficientStorage
	case device.KindClosed, kindServerClosed:
		return http.StatusServiceUnavailable
	case kindUnknownSession, kindFileClosed:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newErrorBody(err error) (int, ErrorBody) {
	kind := errorKind(err)
	body := ErrorBody{Error: err.Error(), Kind: kind}

	switch kind {
	case kindUnknownSession, kindBadRequest, kindServerClosed:
	default:
		body.Errno = chardev.Errno(err).Error()
	}

	return statusFor(kind), body
}

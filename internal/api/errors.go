package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var defaultMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusBadGateway:          "Bad Gateway",
	http.StatusServiceUnavailable:  "Service Unavailable",
	http.StatusGatewayTimeout:      "Gateway Timeout",
}

// abortWithError writes the {message, code} error body.
func abortWithError(c *gin.Context, status int, msg string) {
	if msg == "" {
		msg = defaultMessages[status]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": msg, "code": status})
}

// statusForIPC maps a call failure to an HTTP status. remoteStatus is used
// when the service answered with an error reply.
func statusForIPC(err error, remoteStatus int) int {
	switch {
	case errors.Is(err, ipc.ErrRemote):
		return remoteStatus
	case errors.Is(err, ipc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ipc.ErrTransport), errors.Is(err, ipc.ErrClientClosed), errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithIPCError logs the failure and responds with the mapped status.
// Remote messages are passed through; other failures use the default text.
func abortWithIPCError(c *gin.Context, op string, err error, remoteStatus int) {
	status := statusForIPC(err, remoteStatus)
	logrus.WithFields(logrus.Fields{
		"op":         op,
		"status":     status,
		"request_id": c.GetString("requestID"),
	}).WithError(err).Warn("backend call failed")
	msg := ""
	if errors.Is(err, ipc.ErrRemote) {
		msg = err.Error()
	}
	abortWithError(c, status, msg)
}

package api

import (
	"context"
	"net/http"

	"github.com/Armour007/fast-tasks/internal/auth"
	"github.com/gin-gonic/gin"
)

// Login handles POST /login
func (h *Handlers) Login(c *gin.Context) {
	h.credentials(c, "login", http.StatusUnauthorized, h.backend.Login)
}

// Signin handles POST /signin and registers a new user.
func (h *Handlers) Signin(c *gin.Context) {
	h.credentials(c, "signin", http.StatusBadRequest, h.backend.Signin)
}

func (h *Handlers) credentials(c *gin.Context, op string, remoteStatus int, call func(context.Context, auth.Credentials) (string, error)) {
	var req auth.Credentials
	// a malformed body is reported through the missing fields below
	_ = c.ShouldBindJSON(&req)
	if msg := req.MissingFields(); msg != "" {
		abortWithError(c, http.StatusBadRequest, msg)
		return
	}
	token, err := call(c.Request.Context(), req)
	if err != nil {
		abortWithIPCError(c, op, err, remoteStatus)
		return
	}
	c.JSON(http.StatusOK, auth.Token{Token: token})
}

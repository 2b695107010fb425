package api

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"syncboard/domain"
)

const requestMaxSize = 64 * 1024 // 64 KiB

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the body of a successful register or login.
type authResponse struct {
	User  domain.PublicUser `json:"user"`
	Token string            `json:"token"`
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
}

type editSignalRequest struct {
	ConnectionID string `json:"connectionId"`
}

// conflictResponse is returned with a 409 when an update collides with
// another actor's edit lock. The caller must resubmit with merge or
// overwrite semantics.
type conflictResponse struct {
	Error              string      `json:"error"`
	ConflictingActorID string      `json:"conflictingActorId"`
	CurrentTask        domain.Task `json:"currentTask"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

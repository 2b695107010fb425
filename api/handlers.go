package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"syncboard/board"
	"syncboard/domain"
	"syncboard/stream"
)

// Board is the mutation engine surface the handlers drive.
type Board interface {
	RegisterUser(email, name string, passwordHash []byte) (domain.User, error)
	UserByEmail(email string) (domain.User, bool)
	NoteLogin(userID string)
	Users() []domain.PublicUser
	CreateTask(actorID, title, description string, priority domain.Priority) (domain.Task, error)
	Tasks() []domain.Task
	UpdateTask(taskID, actorID string, delta domain.TaskDelta, force bool) (domain.Task, error)
	DeleteTask(taskID, actorID string) error
	SmartAssign(taskID, actorID string) (domain.Task, error)
	Activities() []domain.Activity
	BeginEdit(taskID, actorID, connectionID string)
	EndEdit(taskID string)
	Disconnect(connectionID string)
}

// Authenticator resolves the actor behind a request and issues tokens for
// the register/login flow.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	Issue(userID string) (string, error)
}

var _ Board = (*board.Engine)(nil)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, b Board, hub *stream.Hub, auth Authenticator, logger *log.Logger) {
	e.POST("/api/register", registerUser(b, auth))
	e.POST("/api/login", loginUser(b, auth))
	e.GET("/api/tasks", getTasks(b, auth))
	e.POST("/api/tasks", createTask(b, auth, logger))
	e.PUT("/api/tasks/:id", updateTask(b, auth, logger))
	e.DELETE("/api/tasks/:id", deleteTask(b, auth))
	e.POST("/api/tasks/:id/smart-assign", smartAssign(b, auth))
	e.POST("/api/tasks/:id/editing/start", startEditing(b, auth))
	e.POST("/api/tasks/:id/editing/stop", stopEditing(b, auth))
	e.GET("/api/activities", getActivities(b, auth))
	e.GET("/api/users", getUsers(b, auth))
	e.GET("/api/stream", streamEvents(b, hub, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func registerUser(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Email == "" || req.Password == "" || req.Name == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email, password and name are required"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "registration failed"})
		}

		user, err := b.RegisterUser(req.Email, req.Name, hash)
		if err != nil {
			return writeError(c, err)
		}
		token, err := auth.Issue(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "registration failed"})
		}
		return c.JSON(http.StatusCreated, authResponse{User: user.Public(), Token: token})
	}
}

func loginUser(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		user, ok := b.UserByEmail(req.Email)
		if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}

		token, err := auth.Issue(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		}
		b.NoteLogin(user.ID)
		return c.JSON(http.StatusOK, authResponse{User: user.Public(), Token: token})
	}
}

func getTasks(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, b.Tasks())
	}
}

func createTask(b Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newMutationMetrics(c.Request().Context(), logger, "POST /api/tasks")
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		actorID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		var req createTaskRequest
		if decErr := decodeBody(c, &req); decErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		if req.Priority == "" {
			req.Priority = domain.PriorityMedium
		}

		engineStart := time.Now()
		task, createErr := b.CreateTask(actorID, req.Title, req.Description, req.Priority)
		metrics.ObserveEngine(time.Since(engineStart))
		if createErr != nil {
			metrics.SetErrorStage("engine")
			err = writeError(c, createErr)
			return err
		}
		err = c.JSON(http.StatusCreated, task)
		return err
	}
}

func updateTask(b Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newMutationMetrics(c.Request().Context(), logger, "PUT /api/tasks/:id")
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		actorID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		var delta domain.TaskDelta
		if decErr := decodeBody(c, &delta); decErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		force := false
		if raw := c.QueryParam("force"); raw != "" {
			parsed, parseErr := strconv.ParseBool(raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_force")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid force flag"})
				return err
			}
			force = parsed
		}

		engineStart := time.Now()
		task, upErr := b.UpdateTask(c.Param("id"), actorID, delta, force)
		metrics.ObserveEngine(time.Since(engineStart))
		if upErr != nil {
			var conflict *domain.ConflictError
			if errors.As(upErr, &conflict) {
				metrics.SetErrorStage("conflict")
				err = c.JSON(http.StatusConflict, conflictResponse{
					Error:              "conflict detected",
					ConflictingActorID: conflict.ActorID,
					CurrentTask:        conflict.Current,
				})
				return err
			}
			metrics.SetErrorStage("engine")
			err = writeError(c, upErr)
			return err
		}
		err = c.JSON(http.StatusOK, task)
		return err
	}
}

func deleteTask(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		if err := b.DeleteTask(c.Param("id"), actorID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func smartAssign(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		task, err := b.SmartAssign(c.Param("id"), actorID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func startEditing(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req editSignalRequest
		if err := decodeBody(c, &req); err != nil || req.ConnectionID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "connectionId is required"})
		}
		b.BeginEdit(c.Param("id"), actorID, req.ConnectionID)
		return c.NoContent(http.StatusNoContent)
	}
}

func stopEditing(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		b.EndEdit(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func getActivities(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, b.Activities())
	}
}

func getUsers(b Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, b.Users())
	}
}

// writeError maps engine errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateTitle),
		errors.Is(err, domain.ErrReservedTitle),
		errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUserExists):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

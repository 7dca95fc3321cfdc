package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// APIResponse is the standard success response shape.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the standard error response shape.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

func ok(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    c.Request.URL.Path,
	})
}

func created(c *gin.Context, data any, message string) {
	c.JSON(http.StatusCreated, APIResponse{
		Data:    data,
		Status:  http.StatusCreated,
		Message: message,
		Path:    c.Request.URL.Path,
	})
}

func fail(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, APIError{
		Message: message,
		Error:   detail,
		Path:    c.Request.URL.Path,
		Status:  status,
	})
}

// failStore reports a store error with the raw diagnostic.
func failStore(c *gin.Context, message string, err error) {
	fail(c, statusOf(err), message, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

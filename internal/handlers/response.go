package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ListEnvelope is the pagination envelope for collection responses.
type ListEnvelope struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Pages int64       `json:"pages"`
}

func RespondOK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusCreated, payload)
}

func RespondList(c *gin.Context, data interface{}, total int64, page, limit int) {
	if page <= 0 {
		page = 1
	}
	// Same clamp the repositories apply, so pages reflects the actual window.
	_, limit = repos.PageWindow(page, limit)
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	c.JSON(http.StatusOK, ListEnvelope{
		Data:  data,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	})
}

// RespondErr maps a service error onto the envelope. Internal detail stays in
// the logs; only taxonomy codes and user-safe messages cross the boundary.
func RespondErr(c *gin.Context, err error) {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		ae = apierr.Internal(err)
	}
	msg := ae.Error()
	if ae.Status >= http.StatusInternalServerError {
		msg = "something went wrong"
	}
	c.JSON(ae.Status, ErrorEnvelope{Error: APIError{Message: msg, Code: ae.Code}})
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

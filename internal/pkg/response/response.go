// Package response is the single boundary that maps service results and
// ApplicationError variants onto HTTP responses.
package response

import (
	"net/http"

	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// JSON writes data with an explicit status code.
func JSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Success writes data with 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with 201.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// RawJSON replays a stored JSON body verbatim.
func RawJSON(c *gin.Context, status int, body []byte) {
	c.Data(status, "application/json; charset=utf-8", body)
}

// ErrorFrom maps an error to its HTTP status and error body.
func ErrorFrom(c *gin.Context, err error) {
	appErr := infraerrors.FromError(err)
	c.JSON(appErr.Code, ErrorBody{Reason: appErr.Reason, Detail: appErr.Message})
}

// BadRequest writes a 400 with a free-form detail message.
func BadRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, ErrorBody{Reason: "BAD_REQUEST", Detail: detail})
}

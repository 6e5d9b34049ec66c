// Package httperror renders engine errors as JSON responses.
package httperror

import (
	"net/http"

	"diamondauction/internal/auctionerr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error" example:"bid must be higher than current price (150.00)"`
	Code  string `json:"code"  example:"bid_too_low"`
} // @name ErrorResponse

// Status maps an error's kind to its HTTP status.
func Status(err error) int {
	switch auctionerr.KindOf(err) {
	case auctionerr.KindValidation:
		return http.StatusBadRequest
	case auctionerr.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case auctionerr.KindConflict:
		return http.StatusConflict
	case auctionerr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Write aborts the request with err. Internal failures are logged and
// reported with a generic message.
func Write(c *gin.Context, err error) {
	status := Status(err)
	body := ErrorResponse{Error: err.Error(), Code: auctionerr.CodeOf(err)}
	if status == http.StatusInternalServerError {
		zap.L().Error("http.internal_error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body.Error = auctionerr.ErrInternal.Message
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest reports a binding failure.
func BadRequest(c *gin.Context, err error) {
	Write(c, auctionerr.Invalid("%s", err.Error()))
}

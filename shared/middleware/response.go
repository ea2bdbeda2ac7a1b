package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Envelope wraps every response body. Result and Error are omitted when unset;
// a false or empty Result is still written.
type Envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func RespondOK(c *gin.Context, result any) {
	c.JSON(http.StatusOK, Envelope{Status: StatusOK, Result: result})
}

func RespondCreated(c *gin.Context, result any) {
	c.JSON(http.StatusCreated, Envelope{Status: StatusOK, Result: result})
}

// RespondFail writes a client failure (400).
func RespondFail(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, message)
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, Envelope{Status: StatusFail, Error: message})
}

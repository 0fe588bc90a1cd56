package security

import (
	"crypto/subtle"
	"net/http"

	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"

	"github.com/gin-gonic/gin"
)

// HeaderServiceToken carries the shared secret of internal callers.
const HeaderServiceToken = "X-Service-Token"

type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ServiceToken guards internal endpoints. The token is read from
// X-Service-Token, or from "Authorization: Bearer". An empty configured token
// rejects every request.
func ServiceToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderServiceToken)
		if got == "" {
			got = security.BearerToken(c.GetHeader("Authorization"))
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Code: errs.CodeUnauthorizedService,
				Msg:  errs.ErrUnauthorizedService.Msg,
			})
			return
		}
		c.Next()
	}
}

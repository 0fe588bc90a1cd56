package ingress

import (
	"io"
	"net/http"

	"PPKitchen/tools/errs"

	"github.com/gin-gonic/gin"
)

const maxEnvelopeBytes = 1 << 20

type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// HTTPHandler serves POST /internal/dispatch.
func (in *Ingress) HTTPHandler(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEnvelopeBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errs.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Code: errs.CodeInvalidEventPayload, Msg: "body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Code: errs.CodeInvalidEventPayload, Msg: "read body: " + err.Error()})
		return
	}
	res, err := in.Handle(SourceHTTP, raw)
	if err != nil {
		resp := errorResponse{Code: errs.Code(err), Msg: err.Error()}
		var ce *errs.CodeError
		if errs.As(err, &ce) {
			resp.Msg = ce.Msg
			if ce.Detail != "" {
				resp.Msg += ": " + ce.Detail
			}
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

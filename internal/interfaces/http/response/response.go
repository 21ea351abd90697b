package response

import (
	"github.com/gin-gonic/gin"

	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
)

// Envelope is the fixed response shape for every JSON endpoint.
// code=0 means success; any other value is the AppError's numeric Code.
type Envelope struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success writes a 200 envelope with code=0.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Envelope{Code: 0, Msg: "ok", Data: data})
}

// Created writes a 201 envelope with code=0.
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Envelope{Code: 0, Msg: "ok", Data: data})
}

// Error translates err into the fixed envelope and HTTP status, wrapping
// plain errors as an internal error.
func Error(c *gin.Context, err error) {
	appErr := domainerrors.As(err)
	body := Envelope{Code: appErr.Code, Msg: appErr.Message}
	if appErr.Details != nil {
		body.Data = appErr.Details
	}
	c.JSON(appErr.Kind.HTTPStatus(), body)
}

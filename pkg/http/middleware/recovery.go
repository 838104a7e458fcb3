package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "RoundPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// panicBody mirrors the API error envelope so clients parse a panic like any other 500.
var panicBody = map[string]interface{}{
	"status":  http.StatusInternalServerError,
	"message": http.StatusText(http.StatusInternalServerError),
	"data":    []map[string]string{{"code": "ERR_INTERNAL", "message": "unexpected server error"}},
}

// Recover turns handler panics into a 500 envelope and logs the stack.
// A response that was already committed, such as an upgraded websocket, is left alone.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.String("method", c.Request().Method),
					applogger.Error(perr),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, panicBody)
			}()
			return next(c)
		}
	}
}

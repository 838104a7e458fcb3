package http

import "github.com/labstack/echo/v4"

// Handler registers a route group on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one failed `validate` tag.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"raw_value"`
	Message string                 `json:"message,omitempty" example:"raw_value is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse is a page of rows with the unpaged total.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

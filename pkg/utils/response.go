package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *AppError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type Meta struct {
	Total    int64 `json:"total,omitempty"`
	Limit    int   `json:"limit,omitempty"`
	CacheHit bool  `json:"cache_hit,omitempty"`
}

func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func SendSuccessWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func SendError(c *gin.Context, statusCode int, err *AppError) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   err,
	})
}

func SendValidationError(c *gin.Context, message string, details string) {
	SendError(c, http.StatusBadRequest, NewAppError(ErrCodeValidation, message, details))
}

func SendInternalError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, NewAppError(ErrCodeInternal, message))
}

// SendDomainError maps a library error onto a status code and error code
func SendDomainError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		SendError(c, http.StatusBadRequest, NewAppError(ErrCodeValidation, message, err.Error()))
	case errors.Is(err, ErrInfeasible):
		SendError(c, http.StatusUnprocessableEntity, NewAppError(ErrCodeInfeasible, message, err.Error()))
	case errors.Is(err, ErrSamplerUnavailable):
		SendError(c, http.StatusBadGateway, NewAppError(ErrCodeSamplerUnavailable, message, err.Error()))
	case errors.Is(err, ErrNotFound):
		SendError(c, http.StatusNotFound, NewAppError(ErrCodeNotFound, message, err.Error()))
	default:
		SendError(c, http.StatusInternalServerError, NewAppError(ErrCodeOptimization, message, err.Error()))
	}
}

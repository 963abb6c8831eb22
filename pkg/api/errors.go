package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// writeError renders the structured error envelope with the HTTP status its
// category maps to. Rate-limit and breaker rejections carry a Retry-After
// header derived from the error's details.
func writeError(c *gin.Context, err error) {
	se := errs.From(err)

	if seconds, ok := se.Details["retry_after_seconds"].(float64); ok && seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(int(seconds)+1))
	}
	c.JSON(statusFor(se.Category), se)
}

func statusFor(category errs.Category) int {
	switch category {
	case errs.CategoryValidation:
		return http.StatusBadRequest
	case errs.CategoryPlanning:
		return http.StatusUnprocessableEntity
	case errs.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errs.CategoryCircuitBreaker:
		return http.StatusServiceUnavailable
	case errs.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errs.CategoryConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

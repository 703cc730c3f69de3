package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindInvalidCredentials: http.StatusBadRequest,
	domain.KindUnauthorized:       http.StatusUnauthorized,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindConflict:           http.StatusConflict,
	domain.KindUnavailable:        http.StatusServiceUnavailable,
}

// respondError writes the error body for err. Unclassified errors are logged
// and reported without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	requestID := c.GetString(middleware.RequestIDKey)

	if errors.Is(err, context.DeadlineExceeded) && domain.KindOf(err) == domain.KindInternal {
		err = domain.ErrUnavailable.Wrap(err)
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      "internal",
			"message":    "internal server error",
			"request_id": requestID,
		})
		return
	}

	status, ok := kindStatus[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success":    false,
		"error":      de.Code,
		"message":    de.Message,
		"request_id": requestID,
	})
}

// bindError turns a gin binding failure into a validation error naming the
// offending fields.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
		return domain.ErrInvalidRequest.WithMessage("%s", strings.Join(msgs, "; "))
	}
	return domain.ErrInvalidRequest.WithMessage("malformed request: %v", err)
}

func deleted(c *gin.Context, what string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("The %s is deleted!", what),
	})
}

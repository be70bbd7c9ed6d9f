package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID tags every request with an id, reusing the caller's header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one line per request.
func AccessLog(log logger.LoggerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		}
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			args = append(args, "error", err)
			var appErr *apperror.AppError
			if errors.As(err, &appErr) {
				args = append(args, appErr.LogArgs()...)
			}
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn(c.Request.Context(), "api request failed", args...)
			return
		}
		log.Debug(c.Request.Context(), "api request", args...)
	}
}

// writeError renders err with the status carried by its AppError, or 500.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(apperror.CodeInternalError, "", err)
	}
	resp := appErr.ToResponse()
	resp.RequestID = c.GetString(requestIDKey)
	var navErr *domain.NavigationError
	if errors.As(err, &navErr) {
		resp.Target = strconv.FormatUint(navErr.Target, 10)
	}
	c.AbortWithStatusJSON(appErr.StatusCode, resp)
}

package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/ai"
	"github.com/xxxsen/paperbrief/internal/middleware"
	"github.com/xxxsen/paperbrief/internal/pkg/errcode"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrIndexNotReady):
		response.Error(c, errcode.ErrIndexNotReady, "index not ready")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrEmbedderUnavailable, "embedding model unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

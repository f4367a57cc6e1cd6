package handler

import (
	"errors"
	"net/http"

	"venue-ledger/internal/middleware"
	apperrors "venue-ledger/pkg/app_errors"
	"venue-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1/venues/:venueId"

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request format: " + err.Error(),
		})
		return err
	}
	return nil
}

// bindOptionalJson body 可省略；有 body 時格式錯誤一樣回 400
func bindOptionalJson(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return BindJson(c, obj) == nil
}

// pathIDs 依序解析 path 上的 uuid 參數
func pathIDs(c *gin.Context, names ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id, err := uuid.Parse(c.Param(name))
		if err != nil {
			return nil, apperrors.NewValidationError(name, "must be a uuid")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func operatorID(c *gin.Context) string {
	return middleware.OperatorID(c)
}

// handleLedgerError 依錯誤種類回應，預期中的業務錯誤記 warn，其他記 error
func handleLedgerError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(
		zap.String("operation", operation),
		zap.String("operator_id", operatorID(c)),
		zap.Error(err),
	)

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperrors.ErrItemNotFound):
		status, kind = http.StatusNotFound, "item_not_found"
	case errors.Is(err, apperrors.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrWrongVenue):
		status, kind = http.StatusForbidden, "wrong_venue"
	case errors.Is(err, apperrors.ErrAlreadyResolved):
		status, kind = http.StatusConflict, "already_resolved"
	case errors.Is(err, apperrors.ErrInsufficientAllotment):
		status, kind = http.StatusConflict, "insufficient_allotment"
	case errors.Is(err, apperrors.ErrPurchaseNotActive):
		status, kind = http.StatusConflict, "purchase_not_active"
	}

	if status == http.StatusInternalServerError {
		log.Error("Unexpected error")
		c.JSON(status, gin.H{
			"error":   kind,
			"message": "Internal server error",
		})
		return
	}

	log.Warn("Request rejected", zap.String("kind", kind))
	c.JSON(status, gin.H{
		"error":   kind,
		"message": err.Error(),
	})
}

func handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	OperatorHeader = "X-Operator-ID"
	operatorKey    = "operator_id"
)

// OperatorIdentity 從 X-Operator-ID 取得操作人員，未帶時為空字串
func OperatorIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(operatorKey, strings.TrimSpace(c.GetHeader(OperatorHeader)))
		c.Next()
	}
}

// RequireOperator 寫入類請求必須帶操作人員，否則回 400
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isMutation(c.Request.Method) && OperatorID(c) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": OperatorHeader + " header is required",
			})
			return
		}
		c.Next()
	}
}

func OperatorID(c *gin.Context) string {
	if operator := c.GetString(operatorKey); operator != "" {
		return operator
	}
	// 未掛 OperatorIdentity 時直接讀 header
	return strings.TrimSpace(c.GetHeader(OperatorHeader))
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

package utils

import "github.com/gin-gonic/gin"

func Success(c *gin.Context, data gin.H) {
	c.JSON(200, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ErrorDetail writes an error envelope with a machine-readable code, a human
// detail and optional extra fields.
func ErrorDetail(c *gin.Context, code int, errCode, detail string, extra ...gin.H) {
	body := gin.H{
		"success": false,
		"error":   errCode,
		"detail":  detail,
	}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(code, body)
}

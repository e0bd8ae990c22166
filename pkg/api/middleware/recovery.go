package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/LENAX/ctas-pipeline/pkg/api/dto"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery panic恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("stack", string(debug.Stack())).Errorf("[Recovery] panic recovered: %v", err)

				c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(
					500,
					"Internal Server Error",
				))
				c.Abort()
			}
		}()
		c.Next()
	}
}

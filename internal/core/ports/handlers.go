package ports

import (
	"github.com/gin-gonic/gin"
)

type AuthHandler interface {
	IssueToken(c *gin.Context)
}

type SignalHandler interface {
	HandleWebSocket(c *gin.Context)
}

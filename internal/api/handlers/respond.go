package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/utils"
)

// respondError maps a service error to its status. Client errors carry the
// error text; server errors are logged and answered generically.
func respondError(c *gin.Context, log *zap.Logger, err error, msg string) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		log.Error(msg, zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pathID parses the :name path parameter and answers 400 when it is not a
// valid id.
func pathID(c *gin.Context, name, what string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

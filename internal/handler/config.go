package handler

import (
	"storyboard-ai/config"
	"storyboard-ai/internal/dto"
	"storyboard-ai/internal/response"
	"storyboard-ai/internal/storage"

	"github.com/gin-gonic/gin"
)

// GetConfig returns the active configuration with secrets masked.
func (h Handler) GetConfig(c *gin.Context) {
	response.Success(c, config.Conf.Redacted())
}

func (h Handler) Health(c *gin.Context) {
	response.Success(c, dto.HealthResData{
		Status:    "ok",
		QueueMode: h.QueueMode,
		HistoryDB: storage.Ready(),
	})
}

package router

import (
	"storyboard-ai/internal/handler"

	"github.com/gin-gonic/gin"
)

func SetupRouter(r *gin.Engine, hdl handler.Handler) {
	api := r.Group("/api")
	{
		api.POST("/runs", hdl.StartRun)
		api.GET("/runs", hdl.GetRunHistory)
		api.GET("/runs/:runId", hdl.GetRun)
		api.GET("/runs/:runId/events", hdl.RunEvents)
		api.POST("/runs/:runId/cancel", hdl.CancelRun)
		api.DELETE("/runs/:runId", hdl.DeleteRun)
		api.POST("/storyboard/check", hdl.CheckStoryboard)
		api.POST("/storyboard/merge-subtitles", hdl.MergeSubtitles)
		api.POST("/storyboard/import", hdl.ImportStoryboard)
		api.GET("/file/*filepath", hdl.DownloadFile)
		api.HEAD("/file/*filepath", hdl.DownloadFile)
		api.GET("/config", hdl.GetConfig)
		api.GET("/health", hdl.Health)
	}
}

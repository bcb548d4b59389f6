package handler

import (
	"storyboard-ai/internal/dto"
	"storyboard-ai/internal/response"
	"storyboard-ai/internal/service"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckStoryboard reports what a run would do without writing anything.
func (h Handler) CheckStoryboard(c *gin.Context) {
	var req dto.StoryboardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}
	res, err := service.CheckStoryboard(req.StoryboardPath)
	if err != nil {
		log.GetLogger().Warn("CheckStoryboard failed", zap.String("storyboard", req.StoryboardPath), zap.Error(err))
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, res)
}

func (h Handler) MergeSubtitles(c *gin.Context) {
	var req dto.StoryboardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}
	res, err := service.MergeSubtitles(req.StoryboardPath, req.SaveDir)
	if err != nil {
		log.GetLogger().Warn("MergeSubtitles failed", zap.String("storyboard", req.StoryboardPath), zap.Error(err))
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, res)
}

// ImportStoryboard writes a new storyboard from seed records.
func (h Handler) ImportStoryboard(c *gin.Context) {
	var req dto.ImportSeedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}
	res, err := service.ImportStoryboard(req.SeedPath, req.StoryboardPath)
	if err != nil {
		log.GetLogger().Warn("ImportStoryboard failed", zap.String("seed", req.SeedPath), zap.Error(err))
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, res)
}

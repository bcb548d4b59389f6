package handler

import (
	"errors"

	"storyboard-ai/internal/dto"
	"storyboard-ai/internal/response"
	"storyboard-ai/internal/storage"
	"storyboard-ai/internal/taskrunner"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (h Handler) StartRun(c *gin.Context) {
	var req dto.StartRunReq
	if err := c.ShouldBindJSON(&req); err != nil {
		log.GetLogger().Error("StartRun ShouldBindJSON err", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}
	log.GetLogger().Info("StartRun received request", zap.Any("req", req))

	runID, err := h.Runs.Enqueue(c.Request.Context(), req.RunRequest())
	if err != nil {
		log.GetLogger().Error("StartRun enqueue err", zap.Error(err))
		response.ErrorResponse(c, enqueueError(err))
		return
	}
	response.RunSuccess(c, runID, dto.StartRunResData{RunId: runID})
}

func enqueueError(err error) error {
	switch {
	case errors.Is(err, taskrunner.ErrDuplicateRun):
		return apperrors.Wrap(apperrors.CodeServiceBusy, "该分镜已有运行中的任务 Storyboard already has an active run", err)
	case errors.Is(err, taskrunner.ErrQueueFull):
		return apperrors.Wrap(apperrors.CodeServiceBusy, "任务队列已满 Run queue is full", err)
	case errors.Is(err, taskrunner.ErrStoryboardPath):
		return apperrors.Wrap(apperrors.CodeInvalidParams, "分镜路径为空 Storyboard path is required", err)
	default:
		return apperrors.Wrap(apperrors.CodeServiceFailed, "提交任务失败 Enqueue run failed", err)
	}
}

func (h Handler) GetRun(c *gin.Context) {
	runID := c.Param("runId")
	data := dto.RunStatusResData{RunId: runID}

	if storage.Ready() {
		record, err := storage.GetRun(runID)
		switch {
		case err == nil:
			data.Record = record
		case !errors.Is(err, gorm.ErrRecordNotFound):
			response.RunError(c, runID, apperrors.Wrap(apperrors.CodeDBError, "查询运行记录失败 Query run failed", err))
			return
		}
	}
	if h.Broker != nil {
		if ev, ok := h.Broker.Last(runID); ok {
			data.LastEvent = &ev
		}
	}
	if data.Record == nil && data.LastEvent == nil {
		response.RunError(c, runID, apperrors.Newf(apperrors.CodeNotFound, "运行不存在 Run not found", "%s", runID))
		return
	}
	response.RunSuccess(c, runID, data)
}

func (h Handler) GetRunHistory(c *gin.Context) {
	var req dto.GetRunHistoryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}
	runs, err := storage.GetRunHistory(req.Limit)
	if err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeDBError, "获取历史记录失败 Load run history failed", err))
		return
	}
	response.Success(c, runs)
}

// CancelRun stops a queued or running run.
func (h Handler) CancelRun(c *gin.Context) {
	runID := c.Param("runId")
	if err := h.Runs.Cancel(runID); err != nil {
		log.GetLogger().Warn("CancelRun failed", zap.String("run_id", runID), zap.Error(err))
		response.RunError(c, runID, apperrors.WrapWithDetail(apperrors.CodeNotFound, "运行不存在或已结束 Run not found or finished", runID, err))
		return
	}
	response.RunSuccess(c, runID, nil)
}

// DeleteRun removes a finished run from history. Files on disk are kept:
// they belong to the storyboard, not to the run.
func (h Handler) DeleteRun(c *gin.Context) {
	runID := c.Param("runId")
	if h.Broker != nil {
		if ev, ok := h.Broker.Last(runID); ok && !ev.Stage.IsTerminal() {
			response.RunError(c, runID, apperrors.Newf(apperrors.CodeServiceBusy, "运行尚未结束 Run is still active", "%s", runID))
			return
		}
	}
	if err := storage.DeleteRun(runID); err != nil {
		response.RunError(c, runID, apperrors.Wrap(apperrors.CodeDBError, "删除运行记录失败 Delete run failed", err))
		return
	}
	log.GetLogger().Info("运行记录已删除 Run deleted", zap.String("run_id", runID))
	response.RunSuccess(c, runID, nil)
}

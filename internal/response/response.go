package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "storyboard-ai/pkg/errors"
)

// Response is the envelope every API route answers with. Failures are
// carried in Error, the HTTP status stays 200.
type Response struct {
	Error     int32  `json:"error"` // 0 = success
	Msg       string `json:"msg"`
	Detail    string `json:"detail,omitempty"`
	RunId     string `json:"run_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"` // same request may succeed later
	Data      any    `json:"data"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Error: 0,
		Msg:   "成功 Success",
		Data:  data,
	})
}

// RunSuccess is Success for routes addressing a single run.
func RunSuccess(c *gin.Context, runID string, data any) {
	c.JSON(http.StatusOK, Response{
		Error: 0,
		Msg:   "成功 Success",
		RunId: runID,
		Data:  data,
	})
}

// FromError converts err to an envelope. Codes of remote services mark the
// response retryable; anything that is not an AppError is CodeUnknown.
func FromError(err error) Response {
	if err == nil {
		return Response{
			Error: 0,
			Msg:   "成功 Success",
		}
	}

	resp := Response{
		Error: int32(apperrors.GetCode(err)),
		Msg:   apperrors.GetMessage(err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Detail = appErr.Detail
		resp.Retryable = apperrors.IsTransient(appErr)
	}
	return resp
}

func ErrorResponse(c *gin.Context, err error) {
	c.JSON(http.StatusOK, FromError(err))
}

// RunError is ErrorResponse for routes addressing a single run.
func RunError(c *gin.Context, runID string, err error) {
	resp := FromError(err)
	resp.RunId = runID
	c.JSON(http.StatusOK, resp)
}

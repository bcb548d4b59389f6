package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"storyboard-ai/internal/response"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/gin-gonic/gin"
)

// DownloadFile serves generated artifacts from the save and run roots.
func (h Handler) DownloadFile(c *gin.Context) {
	requestedFile := c.Param("filepath")
	if strings.Trim(requestedFile, "/") == "" {
		response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams, "文件路径为空 File path is empty"))
		return
	}

	if hasParentTraversal(requestedFile) {
		c.JSON(http.StatusForbidden, response.FromError(
			apperrors.Newf(apperrors.CodeInvalidParams, "非法文件路径 Invalid file path", "%s", requestedFile)))
		return
	}

	localFilePath, ok := resolveDownloadPath(requestedFile)
	if ok {
		info, err := os.Stat(localFilePath)
		ok = err == nil && !info.IsDir()
	}
	if !ok {
		c.JSON(http.StatusNotFound, response.FromError(
			apperrors.Newf(apperrors.CodeFileNotFound, "文件不存在 File not found", "%s", requestedFile)))
		return
	}
	c.FileAttachment(localFilePath, filepath.Base(localFilePath))
}

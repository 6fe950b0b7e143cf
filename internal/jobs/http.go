package jobs

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// allowedExtensions は受け付ける文書形式です（小文字の拡張子）。
var allowedExtensions = map[string]bool{
	".hwp":  true,
	".hwpx": true,
	".odt":  true,
	".docx": true,
}

// UploadStorage はアップロードされた内容の保存先です。
type UploadStorage interface {
	SaveUpload(r io.Reader, originalName string) (path string, detectedMIME string, err error)
}

// UploadHandler は POST /api/upload のハンドラーを返します。
// ファイルの保存が完了してからジョブを登録するため、ワーカーが観測できる
// ジョブは必ずソースファイルを持ちます。
func UploadHandler(registry *Registry, store UploadStorage, maxFileSize int64, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data の file フィールドで文書ファイルを送信してください。",
			})
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !allowedExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "UNSUPPORTED_TYPE",
				"message": fmt.Sprintf("対応していないファイル形式です: %s（.hwp / .hwpx / .odt / .docx のみ対応）", ext),
			})
			return
		}

		if maxFileSize > 0 && fileHeader.Size > maxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxFileSize),
			})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "アップロードされたファイルの読み込みに失敗しました。",
			})
			return
		}
		defer src.Close()

		path, detected, err := store.SaveUpload(src, fileHeader.Filename)
		if err != nil {
			logger.Printf("failed to save upload %q: %v", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "STORAGE_FAILED",
				"message": "ファイルの保存に失敗しました。",
			})
			return
		}

		job := registry.Insert(fileHeader.Filename, path)
		logger.Printf("job %s queued: %s (%s, %d bytes)", job.ID, job.SourceFilename, detected, fileHeader.Size)

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":     job.ID,
			"status":    job.Status,
			"createdAt": job.CreatedAt,
			"message":   fmt.Sprintf("ファイル '%s' を受け付けました。変換は順次実行されます。", job.SourceFilename),
		})
	}
}

// StatusHandler は GET /api/status/:id のハンドラーを返します。
func StatusHandler(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":          job.ID,
			"status":         job.Status,
			"sourceFilename": job.SourceFilename,
			"createdAt":      job.CreatedAt,
		}
		if job.OutputPath != "" {
			payload["outputPath"] = job.OutputPath
		}
		if job.Error != "" {
			payload["error"] = job.Error
		}
		if job.CompletedAt != nil {
			payload["completedAt"] = job.CompletedAt
		}
		c.JSON(http.StatusOK, payload)
	}
}

// DownloadHandler は GET /api/download/:id のハンドラーを返します。
// 変換が終わっていない場合は 202、失敗した場合は記録されたエラーを返します。
func DownloadHandler(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		switch job.Status {
		case StatusPending, StatusProcessing:
			c.JSON(http.StatusAccepted, gin.H{
				"code":    "CONVERSION_IN_PROGRESS",
				"message": "変換が完了していません。しばらくしてから再度お試しください。",
			})
			return
		case StatusFailed:
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "CONVERSION_FAILED",
				"message": job.Error,
			})
			return
		}

		file, err := os.Open(job.OutputPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "RESULT_NOT_FOUND",
				"message": "変換結果のファイルが見つかりませんでした。",
			})
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "変換結果の読み込みに失敗しました。",
			})
			return
		}

		// ダウンロード名は元のファイル名の拡張子を .pdf に差し替えたもの
		stem := strings.TrimSuffix(job.SourceFilename, filepath.Ext(job.SourceFilename))
		downloadName := stem + ".pdf"
		encodedName := url.PathEscape(downloadName)

		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", downloadName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", job.ID)
		c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
	}
}

// ListHandler は GET /api/jobs のハンドラーを返します（診断用）。
func ListHandler(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := registry.All()
		items := make([]gin.H, 0, len(all))
		for _, job := range all {
			items = append(items, gin.H{
				"jobId":          job.ID,
				"status":         job.Status,
				"sourceFilename": job.SourceFilename,
				"createdAt":      job.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, items)
	}
}

// ClearHandler は POST /api/jobs/clear のハンドラーを返します。
// 登録簿の全消去は管理用のリセット操作であり、認証必須の経路にのみ配線します。
func ClearHandler(registry *Registry, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		registry.Clear()
		logger.Printf("job registry cleared")
		c.Status(http.StatusNoContent)
	}
}

package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"knowledge-ingest-platform/internal/config"
	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/internal/queue"
	"knowledge-ingest-platform/models"
	"knowledge-ingest-platform/services"
	"knowledge-ingest-platform/utils"
)

// HandleUpload accepts a multipart document upload, stores the bytes, and
// creates the pending document record. Processing is triggered separately.
func HandleUpload(cfg *config.Config, docs services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithPayloadTooLarge(c, "File size exceeds maximum limit")
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithPayloadTooLarge(c, "File size exceeds maximum limit")
			return
		}

		mimeType := detectMimeType(header.Header.Get("Content-Type"), header.Filename)
		if !isAllowedType(mimeType, cfg.AllowedTypes) {
			utils.RespondWithBadRequest(c, fmt.Sprintf("Unsupported file type: %s", mimeType), gin.H{
				"allowed_types": cfg.AllowedTypes,
			})
			return
		}

		documentID := uuid.NewString()

		if err := os.MkdirAll(cfg.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create storage directory", nil)
			return
		}

		filename := documentID + filepath.Ext(header.Filename)
		filePath := filepath.Join(cfg.FileStorageDir, filename)
		dst, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to open destination file", nil)
			return
		}
		defer dst.Close()

		if _, err := io.Copy(dst, io.LimitReader(file, cfg.MaxFileSize)); err != nil {
			os.Remove(filePath)
			utils.RespondWithInternalError(c, "Failed to save file", nil)
			return
		}

		now := time.Now()
		doc := &models.Document{
			ID:        documentID,
			Filename:  header.Filename,
			FilePath:  filename,
			MimeType:  mimeType,
			Size:      header.Size,
			Status:    models.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := docs.Insert(context.Background(), doc); err != nil {
			os.Remove(filePath)
			utils.RespondWithInternalError(c, "Failed to create document record", nil)
			return
		}

		logger.Info("Document uploaded",
			"document_id", documentID,
			"filename", header.Filename,
			"mime_type", mimeType,
			"size", header.Size,
		)

		c.JSON(http.StatusCreated, gin.H{
			"success":     true,
			"document_id": documentID,
			"status":      models.StatusPending,
		})
	}
}

// HandleProcess enqueues the ingestion pipeline for a pending document.
// A document that is already claimed or terminal is a 409, not a retry.
func HandleProcess(docs services.DocumentRepository, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("documentID")

		doc, err := docs.Get(c.Request.Context(), documentID)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		if doc.Status != models.StatusPending {
			reason := fmt.Sprintf("document is %s, not pending", doc.Status)
			if models.IsTerminal(doc.Status) {
				reason = fmt.Sprintf("document already reached terminal status %s", doc.Status)
			}
			utils.RespondWithConflict(c, reason)
			return
		}

		task, err := queue.NewIngestTask(documentID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingest task", nil)
			return
		}
		if _, err := queueClient.Enqueue(task); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "failed to enqueue document for processing",
			})
			return
		}

		logger.Info("Document queued for processing", "document_id", documentID)
		c.JSON(http.StatusAccepted, gin.H{
			"success":     true,
			"document_id": documentID,
		})
	}
}

// HandleStatus returns the pipeline status of one document.
func HandleStatus(docs services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("documentID")

		doc, err := docs.Get(c.Request.Context(), documentID)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":  doc.ID,
			"filename":     doc.Filename,
			"status":       doc.Status,
			"progress":     doc.Progress,
			"attempts":     doc.Attempts,
			"chunk_count":  doc.ChunkCount,
			"started_at":   doc.StartedAt,
			"completed_at": doc.CompletedAt,
			"last_error":   doc.LastError,
		})
	}
}

// HandleListDocuments returns a paginated document listing, newest first.
func HandleListDocuments(docs services.DocumentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 100 {
			limit = 20
		}

		list, total, err := docs.List(c.Request.Context(), limit, (page-1)*limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": list,
			"total":     total,
			"page":      page,
			"limit":     limit,
		})
	}
}

// HandleDeleteDocument removes the stored file, the chunks, and the record.
func HandleDeleteDocument(cfg *config.Config, docs services.DocumentRepository, store *services.KnowledgeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("documentID")
		ctx := c.Request.Context()

		doc, err := docs.Get(ctx, documentID)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		if err := store.DeleteDocument(ctx, documentID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document chunks", nil)
			return
		}
		if err := docs.Delete(ctx, documentID); err != nil && !errors.Is(err, services.ErrDocumentNotFound) {
			utils.RespondWithInternalError(c, "Failed to delete document record", nil)
			return
		}

		path := doc.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.FileStorageDir, path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove document file", "document_id", documentID, "error", err)
		}

		logger.Info("Document deleted", "document_id", documentID)
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"document_id": documentID,
		})
	}
}

func detectMimeType(contentType, filename string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return contentType
	}
}

func isAllowedType(mimeType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.TrimSpace(t) == mimeType {
			return true
		}
	}
	return false
}

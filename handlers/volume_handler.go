package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"bihar-rag-backend/models"
	"bihar-rag-backend/repository"
	"bihar-rag-backend/service"
	"bihar-rag-backend/storage"

	"github.com/gin-gonic/gin"
)

// maxUploadSize bounds a single volume document upload.
const maxUploadSize = 64 << 20

// VolumeLister reads volume rows for the listing endpoints.
type VolumeLister interface {
	List(ctx context.Context) ([]*models.Volume, error)
	GetByNumber(ctx context.Context, number int) (*models.Volume, error)
}

// ChapterLister reads a volume's chapters.
type ChapterLister interface {
	ListByVolume(ctx context.Context, volume int) ([]*models.Chapter, error)
}

// StatsProvider aggregates corpus statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*repository.CollectionStats, error)
}

// VolumeHandler handles HTTP requests for ingestion and corpus inspection
type VolumeHandler struct {
	ingestService *service.IngestService
	archive       storage.Archive
	volumes       VolumeLister
	chapters      ChapterLister
	stats         StatsProvider
}

// NewVolumeHandler creates a new volume handler
func NewVolumeHandler(ingestService *service.IngestService, archive storage.Archive, volumes VolumeLister, chapters ChapterLister, stats StatsProvider) *VolumeHandler {
	return &VolumeHandler{
		ingestService: ingestService,
		archive:       archive,
		volumes:       volumes,
		chapters:      chapters,
		stats:         stats,
	}
}

// ListVolumes handles GET /api/volumes
func (h *VolumeHandler) ListVolumes(c *gin.Context) {
	volumes, err := h.volumes.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    volumes,
	})
}

// GetVolume handles GET /api/volumes/:number
func (h *VolumeHandler) GetVolume(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NUMBER",
				"message": "Invalid volume number",
			},
		})
		return
	}

	volume, err := h.volumes.GetByNumber(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, repository.ErrVolumeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Volume not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    volume,
	})
}

// ListChapters handles GET /api/volumes/:number/chapters
func (h *VolumeHandler) ListChapters(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || !models.ValidVolumeNumber(number) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NUMBER",
				"message": "Invalid volume number",
			},
		})
		return
	}

	chapters, err := h.chapters.ListByVolume(c.Request.Context(), number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    chapters,
	})
}

// ProcessVolume handles POST /api/volumes/process. The document is uploaded
// as multipart form data; processing runs in the background and progress is
// visible through GET /api/volumes/:number.
func (h *VolumeHandler) ProcessVolume(c *gin.Context) {
	number, err := strconv.Atoi(c.PostForm("volume_number"))
	if err != nil || !models.ValidVolumeNumber(number) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NUMBER",
				"message": "volume_number must be between 1 and 110",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "A document file is required",
			},
		})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": "Document exceeds the upload limit",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// Archive the original so the volume can be reprocessed later without
	// re-uploading. Failure to archive does not block ingestion.
	if _, err := h.archive.Put(c.Request.Context(), number, fileHeader.Filename, bytes.NewReader(data)); err != nil {
		log.Printf("Failed to archive source for volume %d: %v", number, err)
	}

	doc := service.VolumeDocument{
		Number:     number,
		Name:       c.PostForm("name"),
		SourceFile: fileHeader.Filename,
		Data:       data,
	}

	// Detach from the request context: ingestion outlives the response.
	go func() {
		if _, err := h.ingestService.ProcessVolume(context.Background(), doc); err != nil {
			log.Printf("Background processing of volume %d failed: %v", number, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"volume":  number,
			"status":  "processing",
			"message": "Volume accepted. Poll /api/volumes/" + strconv.Itoa(number) + " for progress.",
		},
	})
}

// Reprocess handles POST /api/volumes/:number/reprocess. The archived
// source document is ingested again from scratch, replacing the volume's
// stored chunks.
func (h *VolumeHandler) Reprocess(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || !models.ValidVolumeNumber(number) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NUMBER",
				"message": "Invalid volume number",
			},
		})
		return
	}

	reader, filename, err := h.archive.Get(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, storage.ErrNotArchived) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_ARCHIVED",
					"message": "No archived source document for this volume",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ARCHIVE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	doc := service.VolumeDocument{
		Number:     number,
		SourceFile: filename,
		Data:       data,
	}
	go func() {
		if _, err := h.ingestService.Reprocess(context.Background(), doc); err != nil {
			log.Printf("Reprocessing of volume %d failed: %v", number, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"volume": number,
			"status": "processing",
		},
	})
}

// FixMetadata handles POST /api/volumes/:number/fix-metadata
func (h *VolumeHandler) FixMetadata(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || !models.ValidVolumeNumber(number) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NUMBER",
				"message": "Invalid volume number",
			},
		})
		return
	}

	fixed, err := h.ingestService.FixMetadata(c.Request.Context(), number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FIX_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"volume": number,
			"fixed":  fixed,
		},
	})
}

// Statistics handles GET /api/statistics
func (h *VolumeHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STATS_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

// maxUploadMemory はマルチパートをメモリに保持する上限
const maxUploadMemory = 32 << 20

// CookbookHandler は料理本の取り込み API のハンドラ
type CookbookHandler struct {
	service *ingestion.Service
	logger  *slog.Logger
}

// NewCookbookHandler は CookbookHandler を作成する
func NewCookbookHandler(service *ingestion.Service, logger *slog.Logger) *CookbookHandler {
	return &CookbookHandler{service: service, logger: logger}
}

// RegisterRoutes は /api/cookbooks 配下のルートを登録する
func (h *CookbookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.POST("/:id/index-pages", h.uploadPages)
	rg.POST("/:id/ocr/start", h.startOCR)
	rg.GET("/:id/ocr/results", h.results)
	rg.POST("/:id/confirm", h.confirm)
}

func (h *CookbookHandler) create(c *gin.Context) {
	var req createCookbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, badRequest("invalid request body: %v", err))
		return
	}

	cb, err := h.service.CreateCookbook(c.Request.Context(), req.Title, req.Author)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toCookbook(cb))
}

func (h *CookbookHandler) uploadPages(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	uploads, err := readUploads(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pages, err := h.service.AddPages(c.Request.Context(), id, uploads)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, uploadPagesResponse{CookbookID: id, PageCount: len(pages)})
}

// readUploads は multipart の files フィールドを読み込む
// ファイルが無い場合は空のまま返し、検証はサービスに任せる
func readUploads(c *gin.Context) ([]ingestion.PageUpload, error) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, badRequest("invalid multipart form: %v", err)
	}
	if c.Request.MultipartForm == nil {
		return nil, nil
	}

	headers := c.Request.MultipartForm.File["files"]
	uploads := make([]ingestion.PageUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, ingestion.PageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func (h *CookbookHandler) startOCR(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.service.StartIngestion(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "OCR processing started",
		"cookbookId": id,
		"status":     ingestion.StatusProcessing,
	})
}

func (h *CookbookHandler) results(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	snap, err := h.service.Snapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOcrProgress(snap))
}

func (h *CookbookHandler) confirm(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req confirmImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, badRequest("invalid request body: %v", err))
		return
	}

	result, err := h.service.Confirm(c.Request.Context(), id, req.toConfirmed())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, confirmImportResponse{
		RecipesCreated:   result.RecipesCreated,
		IngredientsTotal: result.IngredientsTotal,
	})
}

package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"

	"github.com/bakalar/bv/internal/api/middleware"
	"github.com/bakalar/bv/internal/books"
	"github.com/bakalar/bv/internal/isbn"
	"github.com/bakalar/bv/internal/pdf"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// 上传体积上限。整本 PDF 必须完整收齐才能计页，所以这里同步读全量。
	maxUploadBytes = 64 << 20
)

// BookHandler 负责书籍上传、列表与页面链接接口。
type BookHandler struct {
	Service   *books.Service
	Logger    *slog.Logger
	ClamdAddr string
}

// NewBookHandler 返回 BookHandler 实例。
func NewBookHandler(service *books.Service, logger *slog.Logger, clamdAddr string) *BookHandler {
	return &BookHandler{
		Service:   service,
		Logger:    logger,
		ClamdAddr: clamdAddr,
	}
}

// bookView 是列表接口的响应条目。
type bookView struct {
	ISBN      string `json:"isbn"`
	PageCount int    `json:"page_count"`
	Processed bool   `json:"processed"`
}

// CreateOrReplaceBook 处理 PUT /v1/books/:isbn。
// 请求体为原始 PDF 字节；同一 ISBN 重复上传会覆盖并重新触发渲染。
func (h *BookHandler) CreateOrReplaceBook(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	contentType := c.ContentType()
	if contentType != "" && contentType != "application/pdf" {
		Error(c, http.StatusUnsupportedMediaType, "content type must be application/pdf")
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	pdfBytes, err := io.ReadAll(body)
	if err != nil {
		BadRequest(c, "failed to read request body")
		return
	}
	if len(pdfBytes) == 0 {
		BadRequest(c, "empty request body")
		return
	}

	if h.ClamdAddr != "" {
		if ok := h.scanUpload(c, log, pdfBytes); !ok {
			return
		}
	}

	code := c.Param("isbn")
	correlationID := middleware.GetCorrelationID(c)

	pageCount, err := h.Service.CreateOrReplace(c.Request.Context(), code, pdfBytes, correlationID)
	switch {
	case err == nil:
	case errors.Is(err, isbn.ErrInvalidFormat), errors.Is(err, isbn.ErrInvalidChecksum):
		BadRequest(c, err.Error())
		return
	case errors.Is(err, pdf.ErrMalformedDocument):
		BadRequest(c, "request body is not a valid pdf")
		return
	default:
		log.Error("ingest book failed", slog.String("isbn", code), slog.Any("error", err))
		BadGateway(c, "failed to store book")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"isbn":       code,
		"page_count": pageCount,
	})
}

// scanUpload 在入库前用 clamd 扫描上传内容。返回 false 表示请求已被拒绝。
func (h *BookHandler) scanUpload(c *gin.Context, log *slog.Logger, pdfBytes []byte) bool {
	clamdClient := clamd.NewClamd(h.ClamdAddr)

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(bytes.NewReader(pdfBytes), abortChan)
	if err != nil {
		log.Error("scan upload failed", slog.Any("error", err))
		Internal(c, "failed to scan upload")
		return false
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return false
		}
	}
	return true
}

// GetBooks 处理 GET /v1/books?offset=&limit=。
// 结果按 ISBN 升序，与上传顺序无关。
func (h *BookHandler) GetBooks(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		BadRequest(c, "invalid offset")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		BadRequest(c, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	records, err := h.Service.List(c.Request.Context(), offset, limit)
	if err != nil {
		log.Error("list books failed", slog.Any("error", err))
		Internal(c, "failed to list books")
		return
	}

	items := make([]bookView, 0, len(records))
	for _, record := range records {
		items = append(items, bookView{
			ISBN:      record.ISBN,
			PageCount: record.PageCount,
			Processed: record.Processed,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetPageURL 处理 GET /v1/books/:isbn/pages/:pageNumber/url。
// 返回 text/plain 的预签名链接；不检查该页是否真的渲染过。
func (h *BookHandler) GetPageURL(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	code := c.Param("isbn")
	pageNumber, err := strconv.Atoi(strings.TrimSpace(c.Param("pageNumber")))
	if err != nil {
		BadRequest(c, "invalid page number")
		return
	}

	url, err := h.Service.PageURL(c.Request.Context(), code, pageNumber)
	switch {
	case err == nil:
	case errors.Is(err, isbn.ErrInvalidFormat), errors.Is(err, isbn.ErrInvalidChecksum):
		BadRequest(c, err.Error())
		return
	case errors.Is(err, books.ErrInvalidPageNumber):
		BadRequest(c, err.Error())
		return
	default:
		log.Error("sign page url failed", slog.String("isbn", code), slog.Any("error", err))
		BadGateway(c, "failed to sign page url")
		return
	}

	c.String(http.StatusOK, url)
}

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrMalformedDocument 表示字节流无法被解析为合法的 PDF。
var ErrMalformedDocument = errors.New("bytes are not a valid pdf document")

// PageCount 解析 PDF 并返回页数。
// 入库前调用，既拿到页数也顺带完成了结构校验。
func PageCount(pdfBytes []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(pdfBytes), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if count < 1 {
		return 0, fmt.Errorf("%w: document has no pages", ErrMalformedDocument)
	}
	return count, nil
}

// Document 是一本已打开、可逐页栅格化的 PDF。
// 页面索引从 0 开始；同一 Document 不支持并发渲染。
type Document interface {
	NumPages() int
	// RenderPage 栅格化指定页并编码为 JPEG。
	RenderPage(pageIndex int) ([]byte, error)
	Close() error
}

// Opener 由渲染 worker 持有，便于测试时替换为假实现。
type Opener interface {
	Open(pdfBytes []byte) (Document, error)
}

// Renderer 基于 MuPDF（go-fitz）实现 Opener。
type Renderer struct {
	DPI         float64
	JPEGQuality int
}

// Open 从内存打开 PDF。解析失败返回 ErrMalformedDocument。
func (r *Renderer) Open(pdfBytes []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &fitzDocument{doc: doc, dpi: r.DPI, quality: r.JPEGQuality}, nil
}

type fitzDocument struct {
	doc     *fitz.Document
	dpi     float64
	quality int
}

func (d *fitzDocument) NumPages() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(pageIndex int) ([]byte, error) {
	img, err := d.doc.ImageDPI(pageIndex, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex+1, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("encode page %d as jpeg: %w", pageIndex+1, err)
	}
	return buf.Bytes(), nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

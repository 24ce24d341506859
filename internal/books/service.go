package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bakalar/bv/internal/database"
	"github.com/bakalar/bv/internal/isbn"
	"github.com/bakalar/bv/internal/storage"
)

// ErrInvalidPageNumber 表示页码小于 1。
var ErrInvalidPageNumber = errors.New("page number must be >= 1")

// ObjectStore 是入库与链接签发所需的对象存储能力。
type ObjectStore interface {
	UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) error
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// TaskQueue 发布书籍渲染触发消息。
// 同一 ISBN 已有在途消息时直接返回成功：消息只是触发器，
// worker 处理时会重新读取最新状态。
type TaskQueue interface {
	EnqueueProcessBook(ctx context.Context, isbn string, correlationID string) error
}

// PageCounter 计算 PDF 页数；生产环境为 pdf.PageCount。
type PageCounter func(pdfBytes []byte) (int, error)

// Service 负责书籍入库、列表查询与页面链接签发。
type Service struct {
	repo       *Repository
	store      ObjectStore
	queue      TaskQueue
	pageCount  PageCounter
	pageURLTTL time.Duration
}

// NewService 组装 Service。
func NewService(repo *Repository, store ObjectStore, queue TaskQueue, pageCount PageCounter, pageURLTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		queue:      queue,
		pageCount:  pageCount,
		pageURLTTL: pageURLTTL,
	}
}

// CreateOrReplace 接收一本书的 PDF 并触发异步渲染，返回页数。
//
// 步骤顺序是约定的一部分：校验 → 计页 → 写原始对象 → 写记录 → 发消息。
// 原始对象必须先于记录写入，保证不会出现"有记录但没有原始 PDF"的状态。
// 各步骤之间没有跨系统事务；后面某步失败时留下的中间状态都可以通过
// 重试同一次调用安全恢复（每一步对同一 ISBN 都是幂等的）。
//
// 已知竞态：渲染进行中重新上传同一 ISBN 时，旧内容渲出的页面对象可能
// 残留到新渲染提交为止。这是沿用的既有行为，未引入版本号修正。
func (s *Service) CreateOrReplace(ctx context.Context, code string, pdfBytes []byte, correlationID string) (int, error) {
	if err := isbn.Validate(code); err != nil {
		return 0, err
	}

	pageCount, err := s.pageCount(pdfBytes)
	if err != nil {
		return 0, err
	}

	if err := s.store.UploadBytes(ctx, storage.BookKey(code), pdfBytes, "application/pdf"); err != nil {
		return 0, fmt.Errorf("store original pdf: %w", err)
	}

	if err := s.repo.Upsert(ctx, code, pageCount); err != nil {
		return 0, err
	}

	// 这里失败会留下 processed=false 且原始 PDF 就绪的记录，
	// 可由 cmd/requeue 重新发布，不属于一致性破坏。
	if err := s.queue.EnqueueProcessBook(ctx, code, correlationID); err != nil {
		return 0, fmt.Errorf("enqueue processing request: %w", err)
	}

	return pageCount, nil
}

// List 按 ISBN 升序返回一页书籍记录。
func (s *Service) List(ctx context.Context, offset, limit int) ([]database.Book, error) {
	return s.repo.List(ctx, offset, limit)
}

// PageURL 为某一页签发限时预签名链接。
//
// 刻意不校验书籍是否存在、页码是否越界、是否已处理完成：
// 这些校验每次都要查一次数据库，而签出的链接最多在对象存储侧 404。
// 热路径上省掉这次往返是沿用的设计取舍。
func (s *Service) PageURL(ctx context.Context, code string, pageNumber int) (string, error) {
	if err := isbn.Validate(code); err != nil {
		return "", err
	}
	if pageNumber < 1 {
		return "", ErrInvalidPageNumber
	}

	url, err := s.store.GeneratePresignedURL(ctx, storage.PageKey(code, pageNumber), s.pageURLTTL)
	if err != nil {
		return "", fmt.Errorf("sign page url: %w", err)
	}
	return url, nil
}

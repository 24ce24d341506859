package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bakalar/bv/internal/pdf"
	"github.com/bakalar/bv/internal/storage"
	"github.com/bakalar/bv/internal/tasks"
)

// ObjectStore 是渲染 worker 所需的对象存储能力。
type ObjectStore interface {
	GetObjectBytes(ctx context.Context, objectKey string) ([]byte, error)
	UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePages(ctx context.Context, isbn string, first, last int) error
}

// BookStore 是渲染 worker 所需的元数据能力。
type BookStore interface {
	MarkProcessed(ctx context.Context, isbn string) error
}

// BookTaskHandler 消费书籍渲染任务。
//
// 单条消息的处理分三段：取原始 PDF → 逐页渲染并写入 → 提交
// （标记已处理 + 删除原始 PDF）。渲染段任何一页失败都会删除本次
// 已写入的页面再返回错误，让队列重投；对外永远不会暴露残缺的页面集合。
// 提交段失败不清理页面：重投会幂等地重渲相同内容并重试提交。
type BookTaskHandler struct {
	repo        BookStore
	storage     ObjectStore
	opener      pdf.Opener
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBookTaskHandler 创建任务处理器。redisClient 可为 nil（不发布事件）。
func NewBookTaskHandler(
	repo BookStore,
	objectStore ObjectStore,
	opener pdf.Opener,
	redisClient *redis.Client,
	logger *slog.Logger,
) *BookTaskHandler {
	return &BookTaskHandler{
		repo:        repo,
		storage:     objectStore,
		opener:      opener,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
// 返回 nil 即确认消息；返回错误则不确认，由队列带退避重投。
func (h *BookTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.BookProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("isbn", payload.ISBN),
		slog.String("correlation_id", payload.CorrelationID),
	)
	log.Info("starting book render task")

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		// 重试次数耗尽，广播失败事件;记录保持 processed=false,
		// 可由 cmd/requeue 重新触发。
		notify := BookProcessNotifyMessage{
			Status:        statusFailed,
			ISBN:          payload.ISBN,
			CorrelationID: payload.CorrelationID,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishNotify(ctx, notify); err != nil {
			log.Error("publish failure notification failed", slog.Any("error", err))
		}
	}()

	pdfBytes, err := h.storage.GetObjectBytes(ctx, storage.BookKey(payload.ISBN))
	if err != nil {
		if storage.IsNoSuchKey(err) {
			// 原始 PDF 不存在:书籍已删除或从未真正入库,
			// 这条消息是垃圾触发器,确认后丢弃即可。
			log.Warn("original pdf missing, dropping task")
			return nil
		}
		log.Error("fetch original pdf failed", slog.Any("error", err))
		return err
	}

	doc, err := h.opener.Open(pdfBytes)
	if err != nil {
		log.Error("open pdf failed", slog.Any("error", err))
		return err
	}
	defer doc.Close()

	pageCount := doc.NumPages()
	written := 0
	var renderErr error
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		imageBytes, err := doc.RenderPage(pageNumber - 1)
		if err != nil {
			renderErr = err
			break
		}
		if err := h.storage.UploadBytes(ctx, storage.PageKey(payload.ISBN, pageNumber), imageBytes, "image/jpeg"); err != nil {
			renderErr = fmt.Errorf("store page %d: %w", pageNumber, err)
			break
		}
		written = pageNumber
	}

	if renderErr != nil {
		log.Error("render failed, cleaning up partial pages",
			slog.Int("pages_written", written),
			slog.Any("error", renderErr),
		)
		// 只删本次已写入的页面;记录不动,消息不确认,等待重投。
		if cleanupErr := h.storage.DeletePages(ctx, payload.ISBN, 1, written); cleanupErr != nil {
			log.Error("cleanup partial pages failed", slog.Any("error", cleanupErr))
		}
		return renderErr
	}

	if err := h.repo.MarkProcessed(ctx, payload.ISBN); err != nil {
		log.Error("mark book processed failed", slog.Any("error", err))
		return err
	}
	if err := h.storage.DeleteObject(ctx, storage.BookKey(payload.ISBN)); err != nil {
		log.Error("delete original pdf failed", slog.Any("error", err))
		return err
	}

	notify := BookProcessNotifyMessage{
		Status:        statusProcessed,
		ISBN:          payload.ISBN,
		PageCount:     pageCount,
		CorrelationID: payload.CorrelationID,
	}
	if err := h.publishNotify(ctx, notify); err != nil {
		// 事件只是通知,发布失败不影响已完成的提交。
		log.Error("publish processed notification failed", slog.Any("error", err))
	}

	log.Info("book render task completed", slog.Int("page_count", pageCount))
	return nil
}

func (h *BookTaskHandler) publishNotify(ctx context.Context, notify BookProcessNotifyMessage) error {
	if h.redisClient == nil {
		return nil
	}
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := h.redisClient.Publish(ctx, NotifyChannel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", NotifyChannel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

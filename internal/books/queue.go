package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bakalar/bv/internal/tasks"
)

// AsynqQueue 用 asynq 实现 TaskQueue。
//
// 投递约定（worker 侧依赖这些性质）：
//   - 至少一次：handler 返回错误即不确认，队列带退避重投；
//   - 每个 key 互斥：任务 ID 由 ISBN 派生，同一 ISBN 最多一个在途任务，
//     重复入队得到 ErrTaskIDConflict，按成功处理（触发器已在队列里）。
type AsynqQueue struct {
	client *asynq.Client
}

// NewAsynqQueue 返回 AsynqQueue 实例。
func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{client: client}
}

// EnqueueProcessBook 发布一条书籍渲染触发消息。
func (q *AsynqQueue) EnqueueProcessBook(ctx context.Context, isbn string, correlationID string) error {
	task, err := tasks.NewBookProcessTask(isbn, correlationID)
	if err != nil {
		return fmt.Errorf("build process task for %q: %w", isbn, err)
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(10),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue process task for %q: %w", isbn, err)
	}
	return nil
}

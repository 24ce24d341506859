package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeBookProcess = "book:process"
)

// BookProcessPayload 描述渲染一本书所需的最小信息。
// 消息只是触发器：worker 处理时会重新读取对象存储与数据库的最新状态。
type BookProcessPayload struct {
	ISBN          string `json:"isbn"`
	CorrelationID string `json:"correlation_id"`
}

// NewBookProcessTask 构造书籍渲染任务。
// TaskID 由 ISBN 派生，保证同一 ISBN 最多只有一个在途任务
// （队列对每个 key 的互斥投递约定靠它实现）。
func NewBookProcessTask(isbn, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(BookProcessPayload{
		ISBN:          isbn,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookProcess, payload, asynq.TaskID(TaskID(isbn))), nil
}

// TaskID 返回某 ISBN 对应的队列任务 ID。
func TaskID(isbn string) string {
	return fmt.Sprintf("%s:%s", TypeBookProcess, isbn)
}

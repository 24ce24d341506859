package worker

// 渲染结果事件（通过 Redis Pub/Sub 对外广播，订阅方在本服务之外）。
// 注意：字段名属于对外协议，改动需要与订阅方同步。
type BookProcessNotifyMessage struct {
	Status        string `json:"status"`
	ISBN          string `json:"isbn"`
	PageCount     int    `json:"page_count,omitempty"`
	CorrelationID string `json:"correlation_id"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// NotifyChannel 是渲染结果事件的发布频道。
const NotifyChannel = "book_events"

const (
	statusProcessed = "processed"
	statusFailed    = "failed"
)

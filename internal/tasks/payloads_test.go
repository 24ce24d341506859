package tasks

import (
	"encoding/json"
	"testing"
)

func TestTaskIDDerivedFromISBN(t *testing.T) {
	// 队列对同一 ISBN 的互斥投递依赖这个 ID 约定。
	if got := TaskID("9780306406157"); got != "book:process:9780306406157" {
		t.Fatalf("TaskID = %q", got)
	}
}

func TestNewBookProcessTask(t *testing.T) {
	task, err := NewBookProcessTask("9780306406157", "cid-1")
	if err != nil {
		t.Fatalf("NewBookProcessTask: %v", err)
	}
	if task.Type() != TypeBookProcess {
		t.Fatalf("task type = %q", task.Type())
	}

	var payload BookProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ISBN != "9780306406157" || payload.CorrelationID != "cid-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

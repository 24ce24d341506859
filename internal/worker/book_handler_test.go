package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"github.com/bakalar/bv/internal/pdf"
	"github.com/bakalar/bv/internal/storage"
	"github.com/bakalar/bv/internal/tasks"
)

const testISBN = "9780306406157"

type fakeObjectStore struct {
	objects map[string][]byte

	uploadFailKey string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) GetObjectBytes(_ context.Context, objectKey string) ([]byte, error) {
	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("get object %q: %w", objectKey, minio.ErrorResponse{Code: "NoSuchKey"})
	}
	return data, nil
}

func (s *fakeObjectStore) UploadBytes(_ context.Context, objectKey string, data []byte, _ string) error {
	if objectKey == s.uploadFailKey {
		return errors.New("upload rejected")
	}
	s.objects[objectKey] = data
	return nil
}

func (s *fakeObjectStore) DeleteObject(_ context.Context, objectKey string) error {
	delete(s.objects, objectKey)
	return nil
}

func (s *fakeObjectStore) DeletePages(ctx context.Context, isbn string, first, last int) error {
	for pageNumber := first; pageNumber <= last; pageNumber++ {
		if err := s.DeleteObject(ctx, storage.PageKey(isbn, pageNumber)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeObjectStore) pageKeys(isbn string, pageCount int) []string {
	keys := make([]string, 0, pageCount)
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		key := storage.PageKey(isbn, pageNumber)
		if _, ok := s.objects[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

type fakeBookStore struct {
	processed   map[string]bool
	failMarks   int
	markedCalls int
}

func newFakeBookStore() *fakeBookStore {
	return &fakeBookStore{processed: map[string]bool{}}
}

func (r *fakeBookStore) MarkProcessed(_ context.Context, isbn string) error {
	r.markedCalls++
	if r.failMarks > 0 {
		r.failMarks--
		return errors.New("db unavailable")
	}
	r.processed[isbn] = true
	return nil
}

// fakeOpener 渲染固定页数；failAtPage > 0 时对应页渲染失败（按 1 起始页码）。
type fakeOpener struct {
	pageCount  int
	failAtPage int
	openErr    error
}

func (o *fakeOpener) Open(_ []byte) (pdf.Document, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return &fakeDocument{pageCount: o.pageCount, failAtPage: o.failAtPage}, nil
}

type fakeDocument struct {
	pageCount  int
	failAtPage int
	closed     bool
}

func (d *fakeDocument) NumPages() int { return d.pageCount }

func (d *fakeDocument) RenderPage(pageIndex int) ([]byte, error) {
	pageNumber := pageIndex + 1
	if d.failAtPage == pageNumber {
		return nil, fmt.Errorf("render page %d: broken page", pageNumber)
	}
	return []byte(fmt.Sprintf("jpeg-%d", pageNumber)), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func newHandlerTask(t *testing.T) (store *fakeObjectStore, repo *fakeBookStore, run func(opener pdf.Opener) error) {
	t.Helper()
	store = newFakeObjectStore()
	repo = newFakeBookStore()
	task, err := tasks.NewBookProcessTask(testISBN, "cid")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	run = func(opener pdf.Opener) error {
		h := NewBookTaskHandler(repo, store, opener, nil, slog.Default())
		return h.ProcessTask(context.Background(), task)
	}
	return store, repo, run
}

func TestProcessTask_FullSuccess(t *testing.T) {
	store, repo, run := newHandlerTask(t)
	store.objects[storage.BookKey(testISBN)] = []byte("%PDF")

	if err := run(&fakeOpener{pageCount: 3}); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if got := store.pageKeys(testISBN, 3); len(got) != 3 {
		t.Fatalf("expected 3 page objects, got %v", got)
	}
	if _, ok := store.objects[storage.BookKey(testISBN)]; ok {
		t.Fatal("original pdf must be deleted after full success")
	}
	if !repo.processed[testISBN] {
		t.Fatal("book must be marked processed")
	}
}

func TestProcessTask_RenderFailureCleansPartialPages(t *testing.T) {
	store, repo, run := newHandlerTask(t)
	store.objects[storage.BookKey(testISBN)] = []byte("%PDF")

	// 第 3 页渲染失败，此前两页已写入。
	if err := run(&fakeOpener{pageCount: 4, failAtPage: 3}); err == nil {
		t.Fatal("expected render error")
	}

	if got := store.pageKeys(testISBN, 4); len(got) != 0 {
		t.Fatalf("partial pages must be cleaned up, got %v", got)
	}
	if repo.processed[testISBN] {
		t.Fatal("book must not be marked processed")
	}
	if _, ok := store.objects[storage.BookKey(testISBN)]; !ok {
		t.Fatal("original pdf must be kept for redelivery")
	}
}

func TestProcessTask_PageUploadFailureCleansPartialPages(t *testing.T) {
	store, repo, run := newHandlerTask(t)
	store.objects[storage.BookKey(testISBN)] = []byte("%PDF")
	store.uploadFailKey = storage.PageKey(testISBN, 2)

	if err := run(&fakeOpener{pageCount: 3}); err == nil {
		t.Fatal("expected upload error")
	}

	if got := store.pageKeys(testISBN, 3); len(got) != 0 {
		t.Fatalf("partial pages must be cleaned up, got %v", got)
	}
	if repo.processed[testISBN] {
		t.Fatal("book must not be marked processed")
	}
}

func TestProcessTask_MissingOriginalIsAckedAndDropped(t *testing.T) {
	store, repo, run := newHandlerTask(t)

	// 原始 PDF 不存在：垃圾消息，确认后丢弃，不算失败。
	if err := run(&fakeOpener{pageCount: 3}); err != nil {
		t.Fatalf("expected nil for missing original, got %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("nothing should be written, got %v", store.objects)
	}
	if repo.markedCalls != 0 {
		t.Fatal("record must not be touched")
	}
}

func TestProcessTask_CommitFailureThenRetryIsIdempotent(t *testing.T) {
	store, repo, run := newHandlerTask(t)
	store.objects[storage.BookKey(testISBN)] = []byte("%PDF")
	repo.failMarks = 1

	// 提交段失败：页面保留，不清理，等待重投。
	if err := run(&fakeOpener{pageCount: 2}); err == nil {
		t.Fatal("expected commit error")
	}
	if got := store.pageKeys(testISBN, 2); len(got) != 2 {
		t.Fatalf("pages must survive a commit failure, got %v", got)
	}
	if repo.processed[testISBN] {
		t.Fatal("book must not be processed yet")
	}

	// 重投：幂等重渲相同页面并完成提交。
	if err := run(&fakeOpener{pageCount: 2}); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := store.pageKeys(testISBN, 2); len(got) != 2 {
		t.Fatalf("expected exactly 2 page objects, got %v", got)
	}
	if !repo.processed[testISBN] {
		t.Fatal("book must be processed after redelivery")
	}
	if _, ok := store.objects[storage.BookKey(testISBN)]; ok {
		t.Fatal("original pdf must be deleted")
	}
}

func TestProcessTask_ReprocessingProcessedBookIsSafe(t *testing.T) {
	store, repo, run := newHandlerTask(t)
	store.objects[storage.BookKey(testISBN)] = []byte("%PDF")
	repo.processed[testISBN] = true
	// 已有上一轮写出的页面。
	store.objects[storage.PageKey(testISBN, 1)] = []byte("stale-1")
	store.objects[storage.PageKey(testISBN, 2)] = []byte("stale-2")

	if err := run(&fakeOpener{pageCount: 2}); err != nil {
		t.Fatalf("reprocess: %v", err)
	}

	if got := store.pageKeys(testISBN, 2); len(got) != 2 {
		t.Fatalf("expected exactly 2 page objects, got %v", got)
	}
	if string(store.objects[storage.PageKey(testISBN, 1)]) != "jpeg-1" {
		t.Fatal("page objects must be rewritten, not duplicated")
	}
	if !repo.processed[testISBN] {
		t.Fatal("processed flag must remain true")
	}
}

func TestProcessTask_MalformedPayloadFails(t *testing.T) {
	store := newFakeObjectStore()
	repo := newFakeBookStore()
	h := NewBookTaskHandler(repo, store, &fakeOpener{pageCount: 1}, nil, slog.Default())

	task := asynq.NewTask(tasks.TypeBookProcess, []byte("{not json"))
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

package books

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bakalar/bv/internal/database"
)

// Repository 封装 Book 记录的数据库访问。
// 同一 ISBN 的写入由数据库自身串行化；队列对每个 key 的互斥投递保证
// 不会有两个 worker 同时处理同一本书，因此无需额外加锁。
type Repository struct {
	db *gorm.DB
}

// NewRepository 返回 Repository 实例。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert 创建或覆盖一条书籍记录。
// 覆盖时重写 page_count 并把 processed 重置为 false
// （重新上传意味着旧的页面对象全部作废）。
func (r *Repository) Upsert(ctx context.Context, isbn string, pageCount int) error {
	book := database.Book{
		ISBN:      isbn,
		PageCount: pageCount,
		Processed: false,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "isbn"}},
		DoUpdates: clause.Assignments(map[string]any{
			"page_count": pageCount,
			"processed":  false,
			"updated_at": time.Now(),
		}),
	}).Create(&book).Error
	if err != nil {
		return fmt.Errorf("upsert book %q: %w", isbn, err)
	}
	return nil
}

// MarkProcessed 将书籍标记为已处理。重复标记是幂等的。
func (r *Repository) MarkProcessed(ctx context.Context, isbn string) error {
	result := r.db.WithContext(ctx).
		Model(&database.Book{}).
		Where("isbn = ?", isbn).
		Update("processed", true)
	if result.Error != nil {
		return fmt.Errorf("mark book %q processed: %w", isbn, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mark book %q processed: %w", isbn, gorm.ErrRecordNotFound)
	}
	return nil
}

// Find 按 ISBN 查询单条记录。
func (r *Repository) Find(ctx context.Context, isbn string) (*database.Book, error) {
	var book database.Book
	if err := r.db.WithContext(ctx).First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, fmt.Errorf("find book %q: %w", isbn, err)
	}
	return &book, nil
}

// ListUnprocessed 返回尚未处理完成的书籍，供运维工具重新触发渲染。
func (r *Repository) ListUnprocessed(ctx context.Context, limit int) ([]database.Book, error) {
	books := make([]database.Book, 0, limit)
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("isbn asc").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("list unprocessed books: %w", err)
	}
	return books, nil
}

// List 按 ISBN 升序返回一页书籍记录（与写入顺序无关）。
func (r *Repository) List(ctx context.Context, offset, limit int) ([]database.Book, error) {
	books := make([]database.Book, 0, limit)
	err := r.db.WithContext(ctx).
		Order("isbn asc").
		Offset(offset).
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

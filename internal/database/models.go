package database

import "time"

// Book 表示一本已上传书籍的元数据记录。
// ISBN 为主键，创建后不可变；所有权威状态都在这条记录上，
// 对象存储中的 PDF/页面对象本身不携带元数据。
type Book struct {
	ISBN      string `gorm:"primaryKey;size:13"`
	PageCount int    `gorm:"not null"`
	// Processed 为 true 意味着全部页面对象已写入且原始 PDF 已删除；
	// 只有渲染 worker 在整本渲染成功后才会置位。
	Processed bool `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

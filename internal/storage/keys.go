package storage

import "fmt"

// 对象命名约定：原始 PDF 为 "<isbn>.pdf"，页面为 "<isbn>_<页码>.jpeg"（页码从 1 开始）。
// 页面链接签发只依赖这两个纯函数，不查数据库。

// BookKey 返回书籍原始 PDF 的对象键。
func BookKey(isbn string) string {
	return isbn + ".pdf"
}

// PageKey 返回某一页 JPEG 的对象键。
func PageKey(isbn string, pageNumber int) string {
	return fmt.Sprintf("%s_%d.jpeg", isbn, pageNumber)
}

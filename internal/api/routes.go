package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/bakalar/bv/internal/books"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	service *books.Service,
	logger *slog.Logger,
	clamdAddr string,
) {
	bookHandler := NewBookHandler(service, logger, clamdAddr)

	v1 := router.Group("/v1")
	{
		booksGroup := v1.Group("/books")
		{
			booksGroup.PUT("/:isbn", bookHandler.CreateOrReplaceBook)
			booksGroup.GET("", bookHandler.GetBooks)
			booksGroup.GET("/:isbn/pages/:pageNumber/url", bookHandler.GetPageURL)
		}
	}
}

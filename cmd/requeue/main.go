package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/bakalar/bv/internal/books"
	"github.com/bakalar/bv/internal/config"
	"github.com/bakalar/bv/internal/database"
)

// 重新发布 processed=false 书籍的渲染任务。
// 覆盖两类卡住的状态：入库时队列发布失败，以及重试次数耗尽的任务。
// 同一 ISBN 已有在途任务时入队会被去重，重复执行是安全的。
func main() {
	var (
		limit  = flag.Int("limit", 100, "最多重新发布的书籍数量")
		dryRun = flag.Bool("dry-run", false, "只列出将要重新发布的书籍，不入队")
	)
	flag.Parse()

	if *limit <= 0 {
		log.Fatal("--limit must be positive")
	}

	cfg := config.MustLoad()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	repo := books.NewRepository(db)

	ctx := context.Background()
	stuck, err := repo.ListUnprocessed(ctx, *limit)
	if err != nil {
		log.Fatalf("list unprocessed books: %v", err)
	}
	if len(stuck) == 0 {
		fmt.Println("no unprocessed books found")
		return
	}

	if *dryRun {
		for _, book := range stuck {
			fmt.Printf("would requeue %s (%d pages)\n", book.ISBN, book.PageCount)
		}
		return
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	queue := books.NewAsynqQueue(asynqClient)
	correlationID := uuid.NewString()

	requeued := 0
	for _, book := range stuck {
		if err := queue.EnqueueProcessBook(ctx, book.ISBN, correlationID); err != nil {
			log.Fatalf("requeue %s: %v", book.ISBN, err)
		}
		requeued++
	}

	fmt.Printf("requeued %d books (correlation_id=%s)\n", requeued, correlationID)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发或交给外部 cron
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

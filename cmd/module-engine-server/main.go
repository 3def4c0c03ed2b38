package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LENAX/module-engine/internal/app"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/engine.yaml", "引擎配置文件路径")
	catalogPath := flag.String("catalog", "./configs/modules.yaml", "模块目录文件路径")
	dataDir := flag.String("data-dir", "./data", "模块数据目录")
	host := flag.String("host", "", "监听地址（覆盖配置文件）")
	port := flag.Int("port", 0, "监听端口（覆盖配置文件）")
	flag.Parse()

	log.Printf("Module Engine Server v%s", Version)
	log.Printf("配置文件: %s", *configPath)

	// 1. 组装应用
	application, err := app.New(app.Options{
		ConfigPath:  *configPath,
		CatalogPath: *catalogPath,
		DataDir:     *dataDir,
		Version:     Version,
		Host:        *host,
		Port:        *port,
	})
	if err != nil {
		log.Fatalf("组装应用失败: %v", err)
	}

	// 2. 启动（恢复非终态工作流 + 保留策略 + API服务器）
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	log.Printf("✅ Module Engine Server started on %s", application.APIServer.Addr())

	// 3. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 4. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Printf("关闭服务失败: %v", err)
	}
	log.Println("✅ 服务已停止")
}

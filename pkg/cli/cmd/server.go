package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LENAX/module-engine/internal/app"
	"github.com/LENAX/module-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	serverPort  int
	serverHost  string
	configPath  string
	catalogPath string
	dataDir     string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Module Engine HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动Module Engine HTTP API服务。

示例：
  # 使用默认配置启动
  module-engine server start

  # 指定端口启动
  module-engine server start --port 8080

  # 指定配置文件启动
  module-engine server start --config ./configs/engine.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 检查配置文件
		if configPath == "" {
			// 尝试默认配置路径
			defaultPaths := []string{
				"./configs/engine.yaml",
				"./config/engine.yaml",
				"./engine.yaml",
			}
			for _, p := range defaultPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
			if configPath == "" {
				output.Error("未找到配置文件，请使用 --config 指定")
				return fmt.Errorf("config file not found")
			}
		}

		output.Info("使用配置文件: %s", configPath)

		// 组装应用
		application, err := app.New(app.Options{
			ConfigPath:  configPath,
			CatalogPath: catalogPath,
			DataDir:     dataDir,
			Version:     Version,
			Host:        serverHost,
			Port:        serverPort,
		})
		if err != nil {
			output.Error("组装应用失败: %v", err)
			return err
		}

		// 启动（恢复非终态工作流 + 保留策略 + API服务器）
		ctx := context.Background()
		if err := application.Start(ctx); err != nil {
			output.Error("启动失败: %v", err)
			return err
		}

		output.Success("Module Engine Server started on %s", application.APIServer.Addr())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Stop(shutdownCtx); err != nil {
			output.Error("关闭服务失败: %v", err)
		}
		output.Success("服务已停止")

		return nil
	},
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "", "监听地址（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")
	serverStartCmd.Flags().StringVar(&catalogPath, "catalog", "./configs/modules.yaml", "模块目录文件路径")
	serverStartCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "模块数据目录")

	serverCmd.AddCommand(serverStartCmd)
}

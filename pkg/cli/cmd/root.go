package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "module-engine",
	Short: "Module Engine CLI - 模块生命周期引擎命令行工具",
	Long: `Module Engine CLI 是一个用于管理模块安装工作流的命令行工具。

支持的功能：
  - 管理工作流（创建、列出、查看、推进、执行、回滚、取消）
  - 批量操作（安装、更新、启用、禁用、校验、备份、删除）
  - 查询错误历史并执行恢复动作
  - 启动HTTP API服务

使用示例：
  # 为模块创建安装工作流
  module-engine workflow start star-atlas

  # 执行工作流的全部步骤
  module-engine workflow run <workflow-id>

  # 批量启用模块
  module-engine bulk run enable star-atlas comet-tracker

  # 查看错误记录
  module-engine errors show <error-id>

  # 启动HTTP服务
  module-engine server start --port 8080`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Module Engine服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

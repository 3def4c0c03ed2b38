package cmd

import (
	"fmt"

	"github.com/LENAX/module-engine/pkg/cli/moduleengine"
	"github.com/LENAX/module-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

// bulkCmd bulk子命令
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "批量操作命令",
	Long:  `对多个模块执行批量操作（install/update/enable/disable/validate/backup/delete）。`,
}

// bulkRunCmd 启动批量操作
var bulkRunCmd = &cobra.Command{
	Use:   "run <kind> <module>...",
	Short: "启动批量操作",
	Long: `启动批量操作，对每个模块独立执行，单个模块失败不影响其余模块。

示例：
  # 批量安装
  module-engine bulk run install star-atlas comet-tracker

  # 批量启用
  module-engine bulk run enable star-atlas comet-tracker`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.StartBulk(args[0], args[1:])
		if err != nil {
			output.Error("启动失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Success("批量操作已启动: %s (共%d个模块)", result.RunID, result.Total)
		output.Info("使用 module-engine bulk status %s 查看进度", result.RunID)
		return nil
	},
}

// bulkStatusCmd 查看批量操作结果
var bulkStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "查看批量操作进度与结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.GetBulk(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		fmt.Printf("Run ID: %s\n", result.RunID)
		fmt.Printf("操作:   %s\n", result.Kind)
		fmt.Printf("状态:   %s\n", result.State)
		fmt.Printf("统计:   成功=%d 失败=%d 跳过=%d 总计=%d\n",
			result.Succeeded, result.Failed, result.Skipped, result.Total)

		table := output.NewTable("MODULE", "STATUS", "WORKFLOW", "MESSAGE").MarkStateColumn(1)
		for _, o := range result.Outcomes {
			wfStr := "-"
			if o.WorkflowID != "" {
				wfStr = o.WorkflowID
			}
			msg := o.Message
			if o.ErrorID != "" {
				msg = fmt.Sprintf("error: %s", o.ErrorID)
			}
			table.AddRow(o.ModuleName, o.Status, wfStr, msg)
		}
		table.Render()
		return nil
	},
}

// bulkCancelCmd 取消批量操作
var bulkCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "取消批量操作（未开始的模块将被跳过）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		if err := client.CancelBulk(args[0]); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}

		output.Success("已请求取消批量操作: %s", args[0])
		return nil
	},
}

func init() {
	bulkCmd.AddCommand(bulkRunCmd)
	bulkCmd.AddCommand(bulkStatusCmd)
	bulkCmd.AddCommand(bulkCancelCmd)
}

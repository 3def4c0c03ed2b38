package cmd

import (
	"fmt"

	"github.com/LENAX/module-engine/pkg/cli/moduleengine"
	"github.com/LENAX/module-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var rollbackTargetStep string

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "工作流管理命令",
	Long:  `管理模块安装工作流，包括创建、列出、查看、推进、执行、回滚和取消。`,
}

// workflowListCmd 列出工作流
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有活跃工作流",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.ListWorkflows()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无活跃工作流")
			return nil
		}

		table := output.NewTable("ID", "MODULE", "STATE", "STEP", "PROGRESS", "CREATED").MarkStateColumn(2)
		for _, wf := range result.Items {
			stepStr := "-"
			if wf.CurrentStep != "" {
				stepStr = wf.CurrentStep
			}
			table.AddRow(
				wf.ID,
				wf.ModuleName,
				wf.State,
				stepStr,
				fmt.Sprintf("%.0f%%", wf.Progress*100),
				wf.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		table.Render()
		return nil
	},
}

// workflowShowCmd 查看工作流详情
var workflowShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看工作流详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.GetWorkflow(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		fmt.Printf("Module:   %s\n", result.ModuleName)
		fmt.Printf("ID:       %s\n", result.ID)
		fmt.Printf("状态:     %s\n", result.State)
		fmt.Printf("进度:     %.0f%%\n", result.Progress*100)
		if result.CurrentStep != "" {
			fmt.Printf("当前步骤: %s\n", result.CurrentStep)
		}
		fmt.Println("\nSteps:")
		for _, s := range result.Steps {
			extra := ""
			if s.Duration != "" {
				extra = fmt.Sprintf(" (%s)", s.Duration)
			}
			if s.ErrorID != "" {
				extra += fmt.Sprintf(" [error: %s]", s.ErrorID)
			}
			fmt.Printf("  - %-10s %s%s\n", s.Step, s.Status, extra)
		}
		return nil
	},
}

// workflowStartCmd 创建工作流
var workflowStartCmd = &cobra.Command{
	Use:   "start <module-name>",
	Short: "为模块创建安装工作流",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.StartWorkflow(args[0], nil)
		if err != nil {
			output.Error("创建失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Success("工作流已创建: %s (%s)", result.ModuleName, result.ID)
		return nil
	},
}

// workflowAdvanceCmd 推进工作流
var workflowAdvanceCmd = &cobra.Command{
	Use:   "advance <id>",
	Short: "推进工作流执行下一个步骤",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.AdvanceWorkflow(args[0])
		if err != nil {
			output.Error("推进失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if result.Cancelled {
			output.Warning("工作流已取消")
			return nil
		}
		if result.Status == "Failed" {
			output.Error("步骤 %s 执行失败 (error: %s)", result.Step, result.ErrorID)
			return nil
		}
		output.Success("步骤 %s 执行成功 (%s)", result.Step, result.Duration)
		if result.Completed {
			output.Success("工作流已完成")
		}
		return nil
	},
}

// workflowRunCmd 执行工作流
var workflowRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "执行工作流的全部剩余步骤",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		if err := client.RunWorkflow(args[0]); err != nil {
			output.Error("执行失败: %v", err)
			return err
		}

		output.Success("工作流已提交执行: %s", args[0])
		output.Info("使用 module-engine workflow show %s 查看进度", args[0])
		return nil
	},
}

// workflowRollbackCmd 回滚工作流
var workflowRollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "回滚工作流",
	Long: `回滚工作流，从当前步骤到目标步骤按逆序撤销，完成后工作流恢复Active。

示例：
  # 完全回滚
  module-engine workflow rollback <id>

  # 回滚到指定步骤（该步骤及之后的步骤被撤销，之前的保留）
  module-engine workflow rollback <id> --to Validate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.RollbackWorkflow(args[0], rollbackTargetStep)
		if err != nil {
			output.Error("回滚失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if result.Partial {
			output.Warning("补偿中断，工作流进入部分回滚状态 (error: %s)", result.ErrorID)
			return nil
		}
		output.Success("回滚完成，撤销步骤: %v", result.Compensated)
		fmt.Printf("最终状态: %s\n", result.FinalState)
		return nil
	},
}

// workflowCancelCmd 取消工作流
var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消工作流",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		if err := client.CancelWorkflow(args[0]); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}

		output.Success("已请求取消工作流: %s", args[0])
		return nil
	},
}

func init() {
	workflowRollbackCmd.Flags().StringVar(&rollbackTargetStep, "to", "", "回滚目标步骤（为空表示完全回滚）")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowStartCmd)
	workflowCmd.AddCommand(workflowAdvanceCmd)
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowRollbackCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
}

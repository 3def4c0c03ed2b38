package cmd

import (
	"fmt"
	"strings"

	"github.com/LENAX/module-engine/pkg/cli/moduleengine"
	"github.com/LENAX/module-engine/pkg/cli/output"
	"github.com/spf13/cobra"
)

var (
	errorsCategory   string
	errorsSeverity   string
	errorsModule     string
	errorsUnresolved bool
	errorsLimit      int
)

// errorsCmd errors子命令
var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "错误历史管理命令",
	Long:  `查询错误历史记录，查看错误详情并执行恢复动作。`,
}

// errorsListCmd 列出错误记录
var errorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "查询错误历史",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.ListErrors(errorsCategory, errorsSeverity, errorsModule, errorsUnresolved, errorsLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无错误记录")
			return nil
		}

		table := output.NewTable("ID", "CATEGORY", "SEVERITY", "MODULE", "RESOLVED", "TIME")
		for _, rec := range result.Items {
			moduleStr := "-"
			if rec.ModuleName != "" {
				moduleStr = rec.ModuleName
			}
			table.AddRow(
				rec.ID,
				rec.Category,
				rec.Severity,
				moduleStr,
				fmt.Sprintf("%t", rec.Resolved),
				rec.Timestamp.Format("2006-01-02 15:04:05"),
			)
		}
		table.Render()
		return nil
	},
}

// errorsShowCmd 查看错误详情
var errorsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看错误记录详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.GetError(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		fmt.Printf("ID:       %s\n", result.ID)
		fmt.Printf("分类:     %s\n", result.Category)
		fmt.Printf("严重性:   %s\n", result.Severity)
		fmt.Printf("消息:     %s\n", result.Message)
		if result.ModuleName != "" {
			fmt.Printf("模块:     %s\n", result.ModuleName)
		}
		if result.Step != "" {
			fmt.Printf("步骤:     %s\n", result.Step)
		}
		fmt.Printf("已解决:   %t\n", result.Resolved)
		fmt.Printf("时间:     %s\n", result.Timestamp.Format("2006-01-02 15:04:05"))
		if len(result.RecoveryActions) > 0 {
			fmt.Printf("\n可用恢复动作: %s\n", strings.Join(result.RecoveryActions, ", "))
		}
		return nil
	},
}

// errorsRecoverCmd 执行恢复动作
var errorsRecoverCmd = &cobra.Command{
	Use:   "recover <error-id> <action-id>",
	Short: "对错误记录执行恢复动作",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := moduleengine.New(serverURL)
		result, err := client.Recover(args[0], args[1])
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if !result.Success {
			output.Error("恢复动作执行失败: %s", result.Message)
			return nil
		}
		output.Success("恢复动作执行成功: %s", result.ActionID)
		return nil
	},
}

func init() {
	errorsListCmd.Flags().StringVar(&errorsCategory, "category", "", "按分类过滤")
	errorsListCmd.Flags().StringVar(&errorsSeverity, "severity", "", "按严重性过滤")
	errorsListCmd.Flags().StringVar(&errorsModule, "module", "", "按模块名过滤")
	errorsListCmd.Flags().BoolVar(&errorsUnresolved, "unresolved", false, "仅显示未解决的错误")
	errorsListCmd.Flags().IntVar(&errorsLimit, "limit", 0, "返回条数上限")

	errorsCmd.AddCommand(errorsListCmd)
	errorsCmd.AddCommand(errorsShowCmd)
	errorsCmd.AddCommand(errorsRecoverCmd)
}

package failure

import (
	"time"

	"github.com/google/uuid"
)

// Category 错误分类枚举（对外导出）
type Category string

const (
	// CategoryValidation 校验类错误（校验和不匹配、签名无效等）
	CategoryValidation Category = "validation"
	// CategoryDownload 下载类错误
	CategoryDownload Category = "download"
	// CategoryInstallation 安装类错误（磁盘空间、写入失败等）
	CategoryInstallation Category = "installation"
	// CategoryNetwork 网络类错误（超时、连接拒绝等）
	CategoryNetwork Category = "network"
	// CategoryConfiguration 配置类错误
	CategoryConfiguration Category = "configuration"
	// CategoryPermission 权限类错误
	CategoryPermission Category = "permission"
	// CategoryDependency 依赖类错误（依赖模块缺失）
	CategoryDependency Category = "dependency"
	// CategoryOther 其他错误（未匹配任何规则时的默认分类）
	CategoryOther Category = "other"
)

// Severity 错误严重程度枚举（对外导出）
type Severity string

const (
	// SeverityInfo 提示级别
	SeverityInfo Severity = "info"
	// SeverityWarning 警告级别
	SeverityWarning Severity = "warning"
	// SeverityError 错误级别（默认）
	SeverityError Severity = "error"
	// SeverityCritical 严重级别
	SeverityCritical Severity = "critical"
)

// ErrorRecord 错误记录（对外导出）
// 由Classifier在操作失败时创建，创建后只读，
// 仅Resolved标记在恢复动作成功后可被置位
type ErrorRecord struct {
	ID              string                 `json:"id"`               // 错误记录ID（UUID）
	Category        Category               `json:"category"`         // 错误分类
	Severity        Severity               `json:"severity"`         // 严重程度
	Message         string                 `json:"message"`          // 人类可读的错误消息
	WorkflowID      string                 `json:"workflow_id"`      // 关联工作流ID（如果有）
	ModuleName      string                 `json:"module_name"`      // 关联模块名称
	Step            string                 `json:"step"`             // 失败步骤（如果有）
	Context         map[string]interface{} `json:"context"`          // 结构化上下文
	RecoveryActions []string               `json:"recovery_actions"` // 候选恢复动作ID列表
	Timestamp       time.Time              `json:"timestamp"`        // 发生时间
	Resolved        bool                   `json:"resolved"`         // 是否已通过恢复动作解决
}

// newErrorRecord 创建错误记录（内部方法，由Classify调用）
func newErrorRecord(category Category, severity Severity, message string, ctx Context) *ErrorRecord {
	context := ctx.Extra
	if context == nil {
		context = make(map[string]interface{})
	}
	return &ErrorRecord{
		ID:         uuid.NewString(),
		Category:   category,
		Severity:   severity,
		Message:    message,
		WorkflowID: ctx.WorkflowID,
		ModuleName: ctx.ModuleName,
		Step:       ctx.Step,
		Context:    context,
		Timestamp:  time.Now(),
	}
}

// Context 分类上下文（对外导出）
// 携带失败来源信息和工作流元数据（用于恢复动作的条件判断）
type Context struct {
	WorkflowID string                 // 关联工作流ID
	ModuleName string                 // 关联模块名称
	Step       string                 // 失败步骤名称
	Metadata   map[string]interface{} // 工作流元数据（如allow_unsafe）
	Extra      map[string]interface{} // 附加结构化上下文
}

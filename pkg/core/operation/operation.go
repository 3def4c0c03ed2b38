package operation

import (
	"context"

	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// Operation 生命周期步骤操作契约（对外导出）
// 每个步骤的实际执行逻辑（下载、安装等）由调用方以Operation形式注入，
// 引擎本身不实现网络传输或文件系统操作
type Operation interface {
	// Execute 执行步骤的正向操作
	Execute(ctx context.Context, step lifecycle.Step, moduleName string, metadata map[string]interface{}) error
	// Compensate 执行步骤的补偿（撤销）操作，用于回滚
	// 不可逆操作应实现no-op或尽力而为的补偿
	Compensate(ctx context.Context, step lifecycle.Step, moduleName string, metadata map[string]interface{}) error
}

// Func 操作函数签名（对外导出）
type Func func(ctx context.Context, step lifecycle.Step, moduleName string, metadata map[string]interface{}) error

// funcOperation 基于函数对的Operation实现（内部实现）
type funcOperation struct {
	execute    Func
	compensate Func
}

// NewFuncOperation 将一对函数包装为Operation（对外导出）
// execute和compensate均不可为nil：缺失补偿是注册阶段的配置错误
func NewFuncOperation(execute, compensate Func) Operation {
	return &funcOperation{execute: execute, compensate: compensate}
}

func (o *funcOperation) Execute(ctx context.Context, step lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
	if o.execute == nil {
		return nil
	}
	return o.execute(ctx, step, moduleName, metadata)
}

func (o *funcOperation) Compensate(ctx context.Context, step lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
	if o.compensate == nil {
		return nil
	}
	return o.compensate(ctx, step, moduleName, metadata)
}

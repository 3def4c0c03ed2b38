package operation

import (
	"fmt"

	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// Registry 步骤操作注册中心（对外导出）
// Build之后只读，可安全并发读取
type Registry struct {
	operations map[lifecycle.Step]Operation
	steps      []lifecycle.Step
}

// Get 获取指定步骤的操作（对外导出）
func (r *Registry) Get(step lifecycle.Step) (Operation, bool) {
	op, ok := r.operations[step]
	return op, ok
}

// Steps 返回注册的步骤序列（对外导出）
func (r *Registry) Steps() []lifecycle.Step {
	result := make([]lifecycle.Step, len(r.steps))
	copy(result, r.steps)
	return result
}

// RegistryBuilder 注册中心构建器（对外导出）
// 按步骤注册Operation，Build时统一校验完整性
type RegistryBuilder struct {
	operations map[lifecycle.Step]Operation
	steps      []lifecycle.Step
}

// NewRegistryBuilder 创建注册中心构建器（对外导出）
// steps为空时使用标准生命周期步骤序列
func NewRegistryBuilder(steps ...lifecycle.Step) *RegistryBuilder {
	if len(steps) == 0 {
		steps = lifecycle.DefaultSteps()
	}
	return &RegistryBuilder{
		operations: make(map[lifecycle.Step]Operation),
		steps:      steps,
	}
}

// Register 注册步骤操作（对外导出）
func (b *RegistryBuilder) Register(step lifecycle.Step, op Operation) *RegistryBuilder {
	b.operations[step] = op
	return b
}

// RegisterFunc 以函数对形式注册步骤操作（对外导出）
func (b *RegistryBuilder) RegisterFunc(step lifecycle.Step, execute, compensate Func) *RegistryBuilder {
	return b.Register(step, NewFuncOperation(execute, compensate))
}

// Build 构建只读注册中心（对外导出）
// 任一步骤缺少操作或操作为nil时返回错误：
// 缺失补偿实现属于配置错误，在构建阶段暴露而不是运行时失败
func (b *RegistryBuilder) Build() (*Registry, error) {
	for _, step := range b.steps {
		if !step.IsValid() {
			return nil, fmt.Errorf("非法生命周期步骤: %s", step)
		}
		op, ok := b.operations[step]
		if !ok || op == nil {
			return nil, fmt.Errorf("步骤 %s 未注册操作，注册中心构建失败", step)
		}
		if fo, ok := op.(*funcOperation); ok && fo.compensate == nil {
			return nil, fmt.Errorf("步骤 %s 未提供补偿函数，不可逆操作应注册no-op补偿", step)
		}
	}

	operations := make(map[lifecycle.Step]Operation, len(b.operations))
	for step, op := range b.operations {
		operations[step] = op
	}
	steps := make([]lifecycle.Step, len(b.steps))
	copy(steps, b.steps)

	return &Registry{operations: operations, steps: steps}, nil
}

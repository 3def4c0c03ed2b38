package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/storage"
)

// RetentionPolicy 历史数据保留策略（对外导出）
type RetentionPolicy struct {
	CronSpec     string        // 清理任务的Cron表达式
	WorkflowTTL  time.Duration // 终态工作流保留时长
	ErrorTTL     time.Duration // 错误记录保留时长
	OnlyResolved bool          // 是否仅清理已解决的错误记录
}

// RetentionPruner 历史数据定时清理器（对外导出）
// 定期删除超过保留时长的终态工作流实例和错误记录
type RetentionPruner struct {
	cron       *cron.Cron
	store      storage.Store
	classifier *failure.Classifier
	policy     RetentionPolicy
	entryID    cron.EntryID
}

// NewRetentionPruner 创建历史数据清理器（对外导出）
func NewRetentionPruner(store storage.Store, classifier *failure.Classifier, policy RetentionPolicy) (*RetentionPruner, error) {
	if policy.CronSpec == "" {
		policy.CronSpec = "0 3 * * *"
	}
	if policy.WorkflowTTL <= 0 {
		policy.WorkflowTTL = 7 * 24 * time.Hour
	}
	if policy.ErrorTTL <= 0 {
		policy.ErrorTTL = 30 * 24 * time.Hour
	}

	pruner := &RetentionPruner{
		cron:       cron.New(),
		store:      store,
		classifier: classifier,
		policy:     policy,
	}

	entryID, err := pruner.cron.AddFunc(policy.CronSpec, func() {
		pruner.RunOnce(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("注册清理任务失败: %w", err)
	}
	pruner.entryID = entryID
	return pruner, nil
}

// Start 启动定时清理（对外导出）
func (p *RetentionPruner) Start() {
	p.cron.Start()
	log.Printf("✅ [保留策略] 清理任务已启动: spec=%s, workflow_ttl=%s, error_ttl=%s",
		p.policy.CronSpec, p.policy.WorkflowTTL, p.policy.ErrorTTL)
}

// Stop 停止定时清理，等待在途清理结束（对外导出）
func (p *RetentionPruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// RunOnce 立即执行一次清理（对外导出）
func (p *RetentionPruner) RunOnce(ctx context.Context) {
	now := time.Now()

	deleted, err := p.store.DeleteTerminalBefore(ctx, now.Add(-p.policy.WorkflowTTL))
	if err != nil {
		log.Printf("⚠️ [保留策略] 清理终态工作流失败: %v", err)
	} else if deleted > 0 {
		log.Printf("✅ [保留策略] 已清理终态工作流: count=%d", deleted)
	}

	errorCutoff := now.Add(-p.policy.ErrorTTL)
	deleted, err = p.store.DeleteErrorRecordsBefore(ctx, errorCutoff, p.policy.OnlyResolved)
	if err != nil {
		log.Printf("⚠️ [保留策略] 清理错误记录失败: %v", err)
	} else if deleted > 0 {
		log.Printf("✅ [保留策略] 已清理错误记录: count=%d", deleted)
	}

	// 同步清理分类器的内存历史
	if p.classifier != nil {
		p.classifier.Prune(errorCutoff, p.policy.OnlyResolved)
	}
}

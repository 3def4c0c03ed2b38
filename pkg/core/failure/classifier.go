package failure

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// 程序性错误（契约违规，直接返回给调用方）
var (
	// ErrUnknownError 错误记录不存在
	ErrUnknownError = errors.New("错误记录不存在")
	// ErrUnknownAction 恢复动作未注册或不适用于该错误分类
	ErrUnknownAction = errors.New("恢复动作未注册或不适用于该错误分类")
)

// Rule 分类规则（对外导出）
// 规则按注册顺序匹配，第一条命中的规则决定分类结果
type Rule struct {
	Name     string               // 规则名称
	Matches  func(err error) bool // 匹配函数
	Category Category             // 命中时的分类
	Severity Severity             // 命中时的严重程度
}

// matchSubstring 构造子串匹配函数（内部方法）
func matchSubstring(substrings ...string) func(err error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := strings.ToLower(err.Error())
		for _, sub := range substrings {
			if strings.Contains(msg, sub) {
				return true
			}
		}
		return false
	}
}

// DefaultRules 返回默认分类规则表（对外导出）
// 顺序敏感：越具体的规则越靠前
func DefaultRules() []Rule {
	return []Rule{
		{Name: "disk_full", Matches: matchSubstring("disk full", "no space left"), Category: CategoryInstallation, Severity: SeverityError},
		{Name: "checksum_mismatch", Matches: matchSubstring("checksum", "hash mismatch", "signature"), Category: CategoryValidation, Severity: SeverityError},
		{Name: "permission_denied", Matches: matchSubstring("permission denied", "access denied", "operation not permitted"), Category: CategoryPermission, Severity: SeverityError},
		{Name: "dependency_missing", Matches: matchSubstring("dependency", "requires module"), Category: CategoryDependency, Severity: SeverityError},
		{Name: "timeout", Matches: func(err error) bool {
			return errors.Is(err, context.DeadlineExceeded) || matchSubstring("timeout", "timed out")(err)
		}, Category: CategoryNetwork, Severity: SeverityWarning},
		{Name: "network", Matches: matchSubstring("connection refused", "connection reset", "no such host", "network"), Category: CategoryNetwork, Severity: SeverityError},
		{Name: "download", Matches: matchSubstring("download", "404", "bad gateway"), Category: CategoryDownload, Severity: SeverityError},
		{Name: "configuration", Matches: matchSubstring("config", "invalid option", "parse"), Category: CategoryConfiguration, Severity: SeverityWarning},
	}
}

// RecordStore 错误记录持久化契约（对外导出）
// 可选注入：为nil时错误历史仅驻留内存
type RecordStore interface {
	SaveErrorRecord(ctx context.Context, record *ErrorRecord) error
	DeleteErrorRecordsBefore(ctx context.Context, before time.Time, onlyResolved bool) (int, error)
}

// HistoryFilter 错误历史查询过滤器（对外导出）
// 零值字段不参与过滤
type HistoryFilter struct {
	Category   Category // 按分类过滤
	Severity   Severity // 按严重程度过滤
	ModuleName string   // 按模块过滤
	WorkflowID string   // 按工作流过滤
	Unresolved bool     // 仅未解决的记录
	Limit      int      // 返回条数上限（0表示不限制）
}

// Classifier 错误分类器（对外导出）
// 规则表在创建后不可变，可安全并发调用Classify；
// 错误历史为进程级状态，进程启动时创建，可随时查询，由保留策略修剪
type Classifier struct {
	rules   []Rule
	actions *actionTable
	store   RecordStore

	mu      sync.RWMutex
	history []*ErrorRecord
	byID    map[string]*ErrorRecord
}

// NewClassifier 创建错误分类器（对外导出）
// rules为空时使用默认规则表；store可为nil
func NewClassifier(rules []Rule, store RecordStore) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{
		rules:   rules,
		actions: newActionTable(),
		store:   store,
		byID:    make(map[string]*ErrorRecord),
	}
}

// Classify 对一次失败进行分类并生成错误记录（对外导出）
// 未命中任何规则时默认 category=other, severity=error
func (c *Classifier) Classify(err error, ctx Context) *ErrorRecord {
	category := CategoryOther
	severity := SeverityError
	for _, rule := range c.rules {
		if rule.Matches(err) {
			category = rule.Category
			severity = rule.Severity
			break
		}
	}

	message := "未知错误"
	if err != nil {
		message = err.Error()
	}

	record := newErrorRecord(category, severity, message, ctx)
	record.RecoveryActions = c.actions.candidatesFor(category, ctx.Metadata)

	c.mu.Lock()
	c.history = append(c.history, record)
	c.byID[record.ID] = record
	c.mu.Unlock()

	if c.store != nil {
		if saveErr := c.store.SaveErrorRecord(context.Background(), record); saveErr != nil {
			log.Printf("⚠️ 持久化错误记录失败: ErrorID=%s, Error=%v", record.ID, saveErr)
		}
	}

	log.Printf("错误已分类: ErrorID=%s, Category=%s, Severity=%s, Module=%s, Step=%s",
		record.ID, record.Category, record.Severity, record.ModuleName, record.Step)
	return record
}

// HandleError 处理一次失败（对外导出）
// Classify的别名入口，供外部协作方（如UI层）直接调用
func (c *Classifier) HandleError(err error, ctx Context) *ErrorRecord {
	return c.Classify(err, ctx)
}

// GetRecord 根据ID获取错误记录（对外导出）
func (c *Classifier) GetRecord(errorID string) (*ErrorRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.byID[errorID]
	return record, ok
}

// GetErrorHistory 查询错误历史（对外导出）
// 按时间顺序返回命中过滤器的记录
func (c *Classifier) GetErrorHistory(filter HistoryFilter) []*ErrorRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*ErrorRecord, 0)
	for _, record := range c.history {
		if filter.Category != "" && record.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && record.Severity != filter.Severity {
			continue
		}
		if filter.ModuleName != "" && record.ModuleName != filter.ModuleName {
			continue
		}
		if filter.WorkflowID != "" && record.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Unresolved && record.Resolved {
			continue
		}
		result = append(result, record)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Prune 按保留策略修剪错误历史（对外导出）
// 移除早于before的记录；onlyResolved为true时仅移除已解决的记录
func (c *Classifier) Prune(before time.Time, onlyResolved bool) int {
	c.mu.Lock()
	kept := make([]*ErrorRecord, 0, len(c.history))
	removed := 0
	for _, record := range c.history {
		if record.Timestamp.Before(before) && (!onlyResolved || record.Resolved) {
			delete(c.byID, record.ID)
			removed++
			continue
		}
		kept = append(kept, record)
	}
	c.history = kept
	c.mu.Unlock()

	if c.store != nil {
		if _, err := c.store.DeleteErrorRecordsBefore(context.Background(), before, onlyResolved); err != nil {
			log.Printf("⚠️ 修剪持久化错误记录失败: %v", err)
		}
	}
	return removed
}

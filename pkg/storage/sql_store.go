package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/storage/dao"
)

// SQLStore 基于sqlx的聚合存储实现（对外导出）
// 通过Dialect屏蔽数据库差异，sqlite/mysql/postgres共用同一实现
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLStore 创建聚合存储实例（对外导出）
func NewSQLStore(db *sqlx.DB, dialect Dialect) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: dialect}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return store, nil
}

// OpenSQLStore 通过DSN创建聚合存储实例（对外导出）
func OpenSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 应用方言级连接配置（如SQLite的PRAGMA）
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置数据库失败: %w", err)
		}
	}

	return NewSQLStore(db, dialect)
}

// GetDB 获取底层数据库连接（对外导出）
func (s *SQLStore) GetDB() *sqlx.DB {
	return s.db
}

// Close 关闭数据库连接（实现Store接口）
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (s *SQLStore) initSchema() error {
	d := s.dialect

	createInstanceSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS workflow_instance (
		id %[1]s PRIMARY KEY,
		module_name %[1]s NOT NULL,
		state %[1]s NOT NULL,
		current_index %[2]s NOT NULL DEFAULT 0,
		steps %[1]s NOT NULL,
		metadata %[1]s,
		error_ids %[1]s,
		progress %[3]s NOT NULL DEFAULT 0,
		estimated_eta %[4]s NOT NULL DEFAULT 0,
		cancel_flag %[5]s NOT NULL DEFAULT %[6]s,
		create_time %[7]s NOT NULL,
		update_time %[7]s NOT NULL
	);
	`, textKey(d), d.IntegerType(), d.FloatType(), d.IntegerType(), d.BooleanType(), falseLiteral(d), d.TimestampType())

	createErrorSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS error_record (
		id %[1]s PRIMARY KEY,
		category %[1]s NOT NULL,
		severity %[1]s NOT NULL,
		message %[2]s,
		workflow_id %[1]s,
		module_name %[1]s,
		step %[1]s,
		context %[2]s,
		recovery_actions %[2]s,
		resolved %[3]s NOT NULL DEFAULT %[4]s,
		timestamp %[5]s NOT NULL
	);
	`, textKey(d), d.TextType(), d.BooleanType(), falseLiteral(d), d.TimestampType())

	if _, err := s.db.Exec(createInstanceSQL); err != nil {
		return fmt.Errorf("创建workflow_instance表失败: %w", err)
	}
	if _, err := s.db.Exec(createErrorSQL); err != nil {
		return fmt.Errorf("创建error_record表失败: %w", err)
	}
	return nil
}

// textKey 主键/索引列的文本类型
// MySQL的TEXT不能作为无长度主键，使用VARCHAR(191)
func textKey(d Dialect) string {
	if d.Name() == "mysql" {
		return "VARCHAR(191)"
	}
	return d.TextType()
}

// falseLiteral 布尔假值字面量
func falseLiteral(d Dialect) string {
	if d.Name() == "postgres" {
		return "FALSE"
	}
	return "0"
}

// nonTerminalStates 非终态工作流状态列表
// Failed不是终态：失败的工作流可被回滚恢复
var nonTerminalStates = []string{
	string(lifecycle.WorkflowStateActive),
	string(lifecycle.WorkflowStateFailed),
}

// terminalStates 终态工作流状态列表
var terminalStates = []string{
	string(lifecycle.WorkflowStateCompleted),
	string(lifecycle.WorkflowStateRolledBack),
	string(lifecycle.WorkflowStatePartiallyRolledBack),
	string(lifecycle.WorkflowStateCancelled),
}

// Save 保存或更新工作流实例（实现WorkflowInstanceRepository接口）
func (s *SQLStore) Save(ctx context.Context, instance *lifecycle.WorkflowInstance) error {
	record, err := dao.FromInstance(instance)
	if err != nil {
		return err
	}

	query := s.dialect.UpsertSQL(
		"workflow_instance",
		dao.WorkflowInstanceColumns,
		"id",
		dao.WorkflowInstanceColumns[1:],
	)
	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("保存工作流实例失败: %w", err)
	}
	return nil
}

// Load 按ID加载工作流实例（实现WorkflowInstanceRepository接口）
func (s *SQLStore) Load(ctx context.Context, workflowID string) (*lifecycle.WorkflowInstance, error) {
	var record dao.WorkflowInstanceDAO
	query := s.db.Rebind("SELECT * FROM workflow_instance WHERE id = ?")
	if err := s.db.GetContext(ctx, &record, query, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
		}
		return nil, fmt.Errorf("加载工作流实例失败: %w", err)
	}
	return record.ToInstance()
}

// LoadAllActive 加载所有非终态的工作流实例（实现WorkflowInstanceRepository接口）
func (s *SQLStore) LoadAllActive(ctx context.Context) ([]*lifecycle.WorkflowInstance, error) {
	query, args, err := sqlx.In(
		"SELECT * FROM workflow_instance WHERE state IN (?) ORDER BY create_time", nonTerminalStates)
	if err != nil {
		return nil, fmt.Errorf("构建查询失败: %w", err)
	}

	var records []dao.WorkflowInstanceDAO
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("加载活跃工作流实例失败: %w", err)
	}

	instances := make([]*lifecycle.WorkflowInstance, 0, len(records))
	for i := range records {
		instance, err := records[i].ToInstance()
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Delete 删除工作流实例（实现WorkflowInstanceRepository接口）
func (s *SQLStore) Delete(ctx context.Context, workflowID string) error {
	query := s.db.Rebind("DELETE FROM workflow_instance WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, query, workflowID); err != nil {
		return fmt.Errorf("删除工作流实例失败: %w", err)
	}
	return nil
}

// DeleteTerminalBefore 删除早于指定时间的终态实例（实现WorkflowInstanceRepository接口）
func (s *SQLStore) DeleteTerminalBefore(ctx context.Context, before time.Time) (int, error) {
	query, args, err := sqlx.In(
		"DELETE FROM workflow_instance WHERE state IN (?) AND update_time < ?", terminalStates, before)
	if err != nil {
		return 0, fmt.Errorf("构建删除语句失败: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("删除终态工作流实例失败: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// SaveErrorRecord 保存或更新错误记录（实现ErrorRecordRepository接口）
func (s *SQLStore) SaveErrorRecord(ctx context.Context, record *failure.ErrorRecord) error {
	errorDAO, err := dao.FromErrorRecord(record)
	if err != nil {
		return err
	}

	query := s.dialect.UpsertSQL(
		"error_record",
		dao.ErrorRecordColumns,
		"id",
		dao.ErrorRecordColumns[1:],
	)
	if _, err := s.db.NamedExecContext(ctx, query, errorDAO); err != nil {
		return fmt.Errorf("保存错误记录失败: %w", err)
	}
	return nil
}

// LoadErrorRecords 按工作流ID加载错误记录（实现ErrorRecordRepository接口）
func (s *SQLStore) LoadErrorRecords(ctx context.Context, workflowID string) ([]*failure.ErrorRecord, error) {
	var records []dao.ErrorRecordDAO
	query := s.db.Rebind("SELECT * FROM error_record WHERE workflow_id = ? ORDER BY timestamp")
	if err := s.db.SelectContext(ctx, &records, query, workflowID); err != nil {
		return nil, fmt.Errorf("加载错误记录失败: %w", err)
	}

	result := make([]*failure.ErrorRecord, 0, len(records))
	for i := range records {
		record, err := records[i].ToErrorRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

// DeleteErrorRecordsBefore 删除早于指定时间的错误记录（实现ErrorRecordRepository接口）
func (s *SQLStore) DeleteErrorRecordsBefore(ctx context.Context, before time.Time, onlyResolved bool) (int, error) {
	query := "DELETE FROM error_record WHERE timestamp < ?"
	args := []interface{}{before}
	if onlyResolved {
		query += " AND resolved = ?"
		args = append(args, true)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("删除错误记录失败: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// 确保实现接口
var _ Store = (*SQLStore)(nil)

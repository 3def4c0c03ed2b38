package storage

// Dialect 数据库方言接口（对外导出）
// 屏蔽sqlite/mysql/postgres之间的SQL差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回database/sql驱动名称
	DriverName() string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（使用命名占位符）
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// ConfigureDB 配置数据库连接（如SQLite的PRAGMA）
	// 返回需要执行的SQL语句列表
	ConfigureDB() []string

	// BooleanType 返回布尔类型
	BooleanType() string

	// TextType 返回文本类型
	TextType() string

	// TimestampType 返回时间戳类型
	TimestampType() string

	// FloatType 返回浮点类型
	FloatType() string

	// IntegerType 返回整数类型
	IntegerType() string
}

package storage

import (
	"fmt"

	"github.com/LENAX/module-engine/pkg/storage"
	"github.com/LENAX/module-engine/pkg/storage/mysql"
	"github.com/LENAX/module-engine/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/module-engine/pkg/storage/sqlite"
)

// NewStore 根据数据库类型创建存储实例（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewStore(dbType, dsn string) (storage.Store, error) {
	switch dbType {
	case "sqlite":
		store, err := pkgsqlite.NewStoreFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("create sqlite store failed: %w", err)
		}
		return store, nil
	case "mysql":
		store, err := mysql.NewStoreFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("create mysql store failed: %w", err)
		}
		return store, nil
	case "postgres", "postgresql":
		store, err := postgres.NewStoreFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("create postgres store failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

package mysql

import (
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	once   sync.Once
	sqlxDB *sqlx.DB
)

// SQLX 返回包装后的 *sqlx.DB（懒加载，复用 UseDB 注入的连接池）
// 模型层统一走 sqlx 的 GetContext/SelectContext/BeginTxx
func SQLX() *sqlx.DB {
	once.Do(func() {
		if DB() != nil {
			sqlxDB = sqlx.NewDb(DB(), "mysql")
		}
	})
	return sqlxDB
}

// UseSQLX 直接注入 sqlx 句柄，测试替换用
func UseSQLX(d *sqlx.DB) {
	once.Do(func() {})
	sqlxDB = d
}

package mysql

import "database/sql"

// 全局句柄由启动期注入一次，运行期只读
var db *sql.DB

// UseDB 注入已初始化的连接池（见 common.InitDB）；nil 注入被忽略
func UseDB(d *sql.DB) {
	if d != nil {
		db = d
	}
}

// DB 返回全局连接池句柄
func DB() *sql.DB {
	return db
}

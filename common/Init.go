package common

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
)

// 连接池回收参数；结算事务短平快，连接不必久留
const (
	connMaxLifetime = 2 * time.Minute
	connMaxIdleTime = time.Minute
	lockWaitSec     = 5
)

// InitDB 建立 MySQL 连接池；连接失败直接退出进程
func InitDB(dsn string, maxIdleConn, maxOpenConn int) *sqlx.DB {
	db, err := sqlx.Connect("mysql", dsn+"&parseTime=true&loc=Local")
	if err != nil {
		logger.Fatalf("mysql connect failed", zap.Error(err))
	}

	db.SetMaxOpenConns(maxOpenConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	// 会话级锁等待上限，避免结算互斥时长时间挂起
	if _, err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", lockWaitSec); err != nil {
		logger.Warn("set innodb_lock_wait_timeout failed", zap.Error(err))
	}

	if err := db.Ping(); err != nil {
		logger.Fatalf("mysql ping failed", zap.Error(err))
	}
	return db
}

package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// Win5 事件主题（outbox 投递到 RocketMQ 的 topic）
const (
	TopicRoundPhase    = "win5_round_phase"    // 阶段流转事件
	TopicWagerPlaced   = "win5_wager_placed"   // 下注成功事件
	TopicRoundSettled  = "win5_round_settled"  // 结算完成事件
	TopicRoundCanceled = "win5_round_canceled" // 回合取消/紧急停止事件
	TopicCashback      = "win5_cashback"       // 返现发放事件
)

// outbox 状态
const (
	OutboxPending int8 = 1
	OutboxSent    int8 = 2
	OutboxDead    int8 = 3
)

// 单条消息最多投递次数，超过转 OutboxDead 等人工介入
const outboxMaxRetry = 10

// Outbox 对应 outbox 表（事务消息表）
// 业务写库与事件落库同事务，调度器异步转发到 MQ
type Outbox struct {
	ID         int64  `db:"id"`
	Topic      string `db:"topic"`
	BizKey     string `db:"biz_key"` // 业务键，消费端幂等用
	Payload    string `db:"payload"` // 消息体 JSON
	Status     int8   `db:"status"`
	RetryCount int    `db:"retry_count"`
	LastError  string `db:"last_error"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (o *Outbox) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	_, err := exec.ExecContext(ctx,
		"INSERT INTO outbox (topic, biz_key, payload, status, retry_count, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		o.Topic, o.BizKey, o.Payload, OutboxPending, 0, "", now, now)
	return err
}

// OutboxRow 调度器扫描用的轻量投影
type OutboxRow struct {
	ID      int64  `db:"id"`
	Topic   string `db:"topic"`
	BizKey  string `db:"biz_key"`
	Payload string `db:"payload"`
}

// ListOutboxPending 按写入顺序取一批待投递事件
func ListOutboxPending(ctx context.Context, exec sqlx.ExtContext, limit int) ([]OutboxRow, error) {
	var list []OutboxRow
	err := sqlx.SelectContext(ctx, exec, &list,
		"SELECT id, topic, biz_key, payload FROM outbox WHERE status = ? AND retry_count < ? ORDER BY id ASC LIMIT ?",
		OutboxPending, outboxMaxRetry, limit)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// MarkOutboxSent 投递成功
func MarkOutboxSent(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	_, err := exec.ExecContext(ctx,
		"UPDATE outbox SET status = ?, updated_at = ? WHERE id = ?",
		OutboxSent, time.Now().UnixMilli(), id)
	return err
}

// MarkOutboxFailed 投递失败：计数+1 并记录错误
// 达到重试上限后转 OutboxDead，不再被扫描
func MarkOutboxFailed(ctx context.Context, exec sqlx.ExtContext, id int64, lastError string) error {
	_, err := exec.ExecContext(ctx,
		"UPDATE outbox SET status = CASE WHEN retry_count >= ? THEN ? ELSE ? END, last_error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?",
		outboxMaxRetry-1, OutboxDead, OutboxPending, lastError, time.Now().UnixMilli(), id)
	return err
}

// CreateOutbox 序列化 payload 并落一条待投递事件
func CreateOutbox(ctx context.Context, exec sqlx.ExtContext, topic, bizKey string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return (&Outbox{Topic: topic, BizKey: bizKey, Payload: string(b)}).Insert(ctx, exec)
}

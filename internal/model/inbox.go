package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Inbox 对应 inbox 表：MQ 消息可靠落库
// (message_id, topic) 唯一键天然去重，重复投递不产生第二行
type Inbox struct {
	ID        int64  `db:"id"`
	MessageID string `db:"message_id"`
	Topic     string `db:"topic"`
	Payload   string `db:"payload"` // 消息体 JSON 原文
	CreatedAt int64  `db:"created_at"`
}

// UpsertInbox 去重入库；已存在时保持首次的 processed_at 不变
func UpsertInbox(ctx context.Context, exec sqlx.ExtContext, messageID, topic, payload string, processedAtMs int64) error {
	_, err := exec.ExecContext(ctx,
		"INSERT INTO inbox (message_id, topic, payload, processed_at, created_at) VALUES (?, ?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE processed_at=processed_at",
		messageID, topic, payload, processedAtMs, time.Now().UnixMilli())
	return err
}

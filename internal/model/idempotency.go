package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// IdempotencyKey 对应 idempotency_keys 表
// 下注去重的最终防线：唯一键 idempotency_key 上的插入冲突即判重
type IdempotencyKey struct {
	ID             int64  `db:"id"`
	IdempotencyKey string `db:"idempotency_key"`
	Purpose        string `db:"purpose"` // wager / settlement / cashback
	Ref            string `db:"ref"`     // 业务引用，下注场景为 bill_no
	CreatedAt      int64  `db:"created_at"`
}

func (k *IdempotencyKey) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	_, err := exec.ExecContext(ctx,
		"INSERT INTO idempotency_keys (idempotency_key, purpose, ref, created_at) VALUES (?, ?, ?, ?)",
		k.IdempotencyKey, k.Purpose, k.Ref, time.Now().UnixMilli())
	return err
}

// CreateOutboxFromIdem 幂等键与 outbox 事件一笔事务内落库
// 幂等键先插，唯一键冲突时不会产生多余的 outbox 事件；须在事务中调用
func CreateOutboxFromIdem(ctx context.Context, exec sqlx.ExtContext, idemKey, purpose, ref, topic string, payload any) error {
	if err := (&IdempotencyKey{IdempotencyKey: idemKey, Purpose: purpose, Ref: ref}).Insert(ctx, exec); err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return (&Outbox{Topic: topic, BizKey: ref, Payload: string(b)}).Insert(ctx, exec)
}

// SelectRefByIdemKey 按幂等键回查业务引用（重复请求返回首次的 bill_no）
func SelectRefByIdemKey(ctx context.Context, db *sqlx.DB, key string) (string, error) {
	var ref string
	err := sqlx.GetContext(ctx, db, &ref,
		"SELECT ref FROM idempotency_keys WHERE idempotency_key = ? LIMIT 1", key)
	if err != nil {
		return "", err
	}
	return ref, nil
}

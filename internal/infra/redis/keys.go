package redis

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串，便于统一维护与变更。

import "strconv"

const (
	// PrefixWagerIdemResult：下注幂等“结果缓存”Key 的前缀。
	// 作用：缓存某个 idempotency key 对应的第一次成功结果（WagerOutput JSON），用于后续重复请求直接返回。
	PrefixWagerIdemResult = "wager:idem:result:"
	// PrefixWagerIdemLock：下注幂等“进行中锁”Key 的前缀。
	// 作用：使用 SETNX + TTL 标记 idempotency key 正在处理，吸收瞬时重复请求，减轻数据库压力。
	PrefixWagerIdemLock = "wager:idem:lock:"

	// PrefixRoundInfo：回合信息缓存（阶段、下注窗口），用于前端倒计时等快速查询
	PrefixRoundInfo = "win5:round:"
	// PrefixRoundResult：开奖结果缓存
	PrefixRoundResult = "win5:result:"
	// PrefixRoundExposure：回合敞口聚合缓存（10 个开奖值各自的应派总额）
	PrefixRoundExposure = "win5:exposure:"

	// PrefixAuthNonce：平台签名防重放 nonce 标记
	PrefixAuthNonce = "win5:auth:nonce:"
	// PrefixTokenDeny：已撤销玩家 Token 的黑名单标记
	PrefixTokenDeny = "win5:auth:deny:"
)

// IdemResultKey：构造幂等“结果缓存”的完整 Key。
// 形如：wager:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixWagerIdemResult + k }

// IdemLockKey：构造幂等“进行中锁”的完整 Key。
// 形如：wager:idem:lock:{idempotency_key}
func IdemLockKey(k string) string { return PrefixWagerIdemLock + k }

// RoundInfoKey：构造回合信息缓存 Key。形如：win5:round:{round_no}
func RoundInfoKey(roundNo int64) string { return PrefixRoundInfo + strconv.FormatInt(roundNo, 10) }

// RoundResultKey：构造开奖结果缓存 Key。形如：win5:result:{round_no}
func RoundResultKey(roundNo int64) string { return PrefixRoundResult + strconv.FormatInt(roundNo, 10) }

// RoundExposureKey：构造敞口聚合缓存 Key。形如：win5:exposure:{round_no}
func RoundExposureKey(roundNo int64) string {
	return PrefixRoundExposure + strconv.FormatInt(roundNo, 10)
}

// AuthNonceKey：构造防重放 nonce Key。形如：win5:auth:nonce:{app_key}:{nonce}
func AuthNonceKey(appKey, nonce string) string { return PrefixAuthNonce + appKey + ":" + nonce }

// TokenDenyKey：构造 Token 黑名单 Key。形如：win5:auth:deny:{token}
func TokenDenyKey(token string) string { return PrefixTokenDeny + token }

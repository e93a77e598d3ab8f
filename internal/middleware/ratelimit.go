package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// limitRule 单个限流维度：dimension 用于组 key，subject 为被限对象
type limitRule struct {
	dimension string
	subject   string
	limit     int
	windowSec int
}

// RateLimitFilter 下注接口限流
// 四个维度依序检查：全局 → IP → 平台 → 玩家，任一超限即拒绝
// Redis 不可用时整体降级放行，投注正确性不依赖限流
func RateLimitFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	if cfg == nil || !cfg.RateLimit.Enabled {
		return
	}

	traceID := helper.GetTraceID(ctx)
	rdb := infrds.Client()
	if rdb == nil {
		logger.Warn("redis not available, rate limit skipped", zap.String("trace_id", traceID))
		return
	}

	rules := make([]limitRule, 0, 4)
	if rps := cfg.RateLimit.Global.RequestsPerSecond; rps > 0 {
		rules = append(rules, limitRule{"global", "all", rps, 1})
	}
	if rps := cfg.RateLimit.ByIP.RequestsPerSecond; rps > 0 {
		rules = append(rules, limitRule{"ip", getClientIP(ctx), rps, cfg.RateLimit.ByIP.WindowSeconds})
	}
	if rps := cfg.RateLimit.ByPlatform.RequestsPerSecond; rps > 0 {
		if pid := ctx.Input.GetData("platform_id"); pid != nil {
			rules = append(rules, limitRule{
				"platform", fmt.Sprintf("platform_%d", pid.(int8)),
				rps, cfg.RateLimit.ByPlatform.WindowSeconds,
			})
		}
	}
	if rps := cfg.RateLimit.ByUser.RequestsPerSecond; rps > 0 {
		if uid := ctx.Input.GetData("platform_user_id"); uid != nil {
			rules = append(rules, limitRule{
				"user", "user_" + uid.(string),
				rps, cfg.RateLimit.ByUser.WindowSeconds,
			})
		}
	}

	reqCtx := ctx.Request.Context()
	for _, r := range rules {
		if withinLimit(reqCtx, rdb, r) {
			continue
		}
		logger.Warn("rate limit exceeded",
			zap.String("trace_id", traceID),
			zap.String("dimension", r.dimension),
			zap.String("subject", r.subject))
		ctx.Output.SetStatus(429)
		ctx.Output.JSON(response.APIResponse{
			Code:      response.CodeRateLimitExceeded,
			Message:   "请求频率超限，请稍后重试",
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
		return
	}
}

// withinLimit 滑动窗口计数（Sorted Set，score 为秒级时间戳）
// 一次 pipeline 完成：清理窗口外成员 → 计数 → 记入本次请求 → 续期
func withinLimit(ctx context.Context, rdb *redis.Client, r limitRule) bool {
	key := fmt.Sprintf("win5:ratelimit:%s:%s", r.dimension, r.subject)
	now := time.Now().Unix()
	windowStart := now - int64(r.windowSec)

	pipe := rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCount(ctx, key, strconv.FormatInt(windowStart, 10), "+inf")
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d_%d", now, time.Now().UnixNano()),
	})
	pipe.Expire(ctx, key, time.Duration(r.windowSec+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("rate limit pipeline failed", zap.Error(err))
		return true
	}
	count, err := countCmd.Result()
	if err != nil {
		logger.Warn("rate limit count failed", zap.Error(err))
		return true
	}
	return count < int64(r.limit)
}

// getClientIP 反向代理后取真实来源 IP
func getClientIP(ctx *beegocontext.Context) string {
	if ip := ctx.Input.Header("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		for idx := 0; idx < len(xff); idx++ {
			if xff[idx] == ',' {
				return xff[:idx]
			}
		}
		return xff
	}
	return ctx.Request.RemoteAddr
}

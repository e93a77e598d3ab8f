package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// 签名时间戳允许的最大偏差（秒），超出判定为重放或时钟漂移
const signatureWindowSec = 300

// nonce 标记保留时长，覆盖签名窗口并留出冗余
const nonceTTL = 10 * time.Minute

// Platform 接入方（聚合平台）信息，来自配置
type Platform struct {
	PlatformID int8
	AppKey     string
	AppSecret  string
	Name       string
	Status     int8
	RateLimit  int
	AllowedIPs []string
}

// signedHeaders 请求携带的签名要素
type signedHeaders struct {
	appKey    string
	timestamp string
	nonce     string
	signature string
}

func extractSignedHeaders(ctx *beegocontext.Context) (signedHeaders, bool) {
	h := signedHeaders{
		appKey:    strings.TrimSpace(ctx.Input.Header("X-Platform-Key")),
		timestamp: strings.TrimSpace(ctx.Input.Header("X-Timestamp")),
		nonce:     strings.TrimSpace(ctx.Input.Header("X-Nonce")),
		signature: strings.TrimSpace(ctx.Input.Header("X-Signature")),
	}
	ok := h.appKey != "" && h.timestamp != "" && h.nonce != "" && h.signature != ""
	return h, ok
}

// VerifyPlatformSignature 校验平台 HMAC 签名并返回平台信息
// 校验链：头完整性 → 时间窗 → nonce 去重 → 平台状态/IP → 签名比对
func VerifyPlatformSignature(ctx *beegocontext.Context) (*Platform, error) {
	h, ok := extractSignedHeaders(ctx)
	if !ok {
		logger.Warn("platform auth headers incomplete", zap.String("app_key", h.appKey))
		return nil, ErrMissingAuthHeaders
	}

	if err := checkTimestamp(h.timestamp); err != nil {
		logger.Warn("platform timestamp rejected",
			zap.String("app_key", h.appKey), zap.String("timestamp", h.timestamp))
		return nil, err
	}

	if err := markNonce(ctx.Request.Context(), h.appKey, h.nonce); err != nil {
		logger.Warn("platform nonce rejected",
			zap.String("app_key", h.appKey), zap.String("nonce", h.nonce), zap.Error(err))
		return nil, err
	}

	platform, err := LookupPlatform(h.appKey)
	if err != nil {
		logger.Warn("unknown platform app key", zap.String("app_key", h.appKey))
		return nil, err
	}
	if platform.Status != 1 {
		logger.Warn("disabled platform attempted access",
			zap.String("app_key", h.appKey), zap.Int8("status", platform.Status))
		return nil, ErrPlatformDisabled
	}
	if len(platform.AllowedIPs) > 0 {
		ip := clientIP(ctx)
		if !ipAllowed(ip, platform.AllowedIPs) {
			logger.Warn("platform request from unlisted ip",
				zap.String("app_key", h.appKey), zap.String("client_ip", ip))
			return nil, ErrIPNotAllowed
		}
	}

	want := Sign(h.appKey, h.timestamp, h.nonce, requestBody(ctx), platform.AppSecret)
	if !hmacEqual(h.signature, want) {
		logger.Warn("platform signature mismatch", zap.String("app_key", h.appKey))
		return nil, ErrInvalidSignature
	}

	return platform, nil
}

func checkTimestamp(raw string) error {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrTimestampExpired
	}
	if math.Abs(float64(time.Now().Unix()-ts)) > signatureWindowSec {
		return ErrTimestampExpired
	}
	return nil
}

// markNonce 以 SETNX 语义占用 nonce；已存在说明重放
// Redis 不可用时降级放行：时间窗仍在兜底
func markNonce(ctx context.Context, appKey, nonce string) error {
	rdb := infrds.Client()
	if rdb == nil {
		logger.Warn("redis not available, nonce check skipped")
		return nil
	}
	set, err := rdb.SetNX(ctx, infrds.AuthNonceKey(appKey, nonce), "1", nonceTTL).Result()
	if err != nil {
		logger.Warn("nonce setnx failed", zap.Error(err))
		return nil
	}
	if !set {
		return ErrNonceReused
	}
	return nil
}

// LookupPlatform 按 app_key 在配置中检索平台
func LookupPlatform(appKey string) (*Platform, error) {
	cfg := config.Get()
	if cfg == nil {
		return nil, ErrInvalidPlatform
	}
	for _, p := range cfg.Auth.Platforms {
		if p.AppKey == appKey {
			return &Platform{
				PlatformID: p.PlatformID,
				AppKey:     p.AppKey,
				AppSecret:  p.AppSecret,
				Name:       p.Name,
				Status:     p.Status,
				RateLimit:  p.RateLimit,
				AllowedIPs: p.AllowedIPs,
			}, nil
		}
	}
	return nil, ErrInvalidPlatform
}

// Sign 计算平台签名：HMAC-SHA256(app_key + timestamp + nonce + body, app_secret)
// 导出给对接文档/联调工具复用，保证双方算法一致
func Sign(appKey, timestamp, nonce, body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(appKey + timestamp + nonce + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return hmac.Equal([]byte(a), []byte(b))
}

// requestBody 取参与签名的请求体；GET/DELETE 以空串入签
// body 只能读一次，读取结果缓存到 context 供后续解析复用
func requestBody(ctx *beegocontext.Context) string {
	if ctx.Request.Method == "GET" || ctx.Request.Method == "DELETE" {
		return ""
	}
	if cached := ctx.Input.GetData("request_body"); cached != nil {
		if s, ok := cached.(string); ok {
			return s
		}
	}
	s := string(ctx.Input.RequestBody)
	ctx.Input.SetData("request_body", s)
	return s
}

// clientIP 反向代理后取真实来源 IP
func clientIP(ctx *beegocontext.Context) string {
	if ip := strings.TrimSpace(ctx.Input.Header("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return ctx.Request.RemoteAddr
}

func ipAllowed(clientIP string, allowed []string) bool {
	for _, ip := range allowed {
		if strings.TrimSpace(ip) == clientIP {
			return true
		}
	}
	return false
}

// IsValidPlatformUserID 平台侧用户 ID 格式约束：1..64 位字母数字下划线连字符
func IsValidPlatformUserID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

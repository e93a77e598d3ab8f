package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// PlayerClaims 玩家会话 Token 的 Claims
// 玩家身份以 (platform_id, platform_user_id) 为准，与钱包账户一致
type PlayerClaims struct {
	PlatformID       int8   `json:"platform_id"`
	PlatformUserID   string `json:"platform_user_id"`
	PlatformUserName string `json:"platform_user_name"`
	AppKey           string `json:"app_key"`
	TokenType        string `json:"token_type"` // access / refresh
	jwt.RegisteredClaims
}

func issueToken(claims PlayerClaims, ttlSec int) (string, error) {
	cfg := config.Get()
	if cfg == nil {
		return "", fmt.Errorf("config not loaded")
	}
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSec) * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    cfg.Auth.JWT.Issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWT.Secret))
}

// IssueAccessToken 为指定玩家签发访问令牌
func IssueAccessToken(platformID int8, platformUserID, platformUserName, appKey string) (string, error) {
	cfg := config.Get()
	if cfg == nil {
		return "", fmt.Errorf("config not loaded")
	}
	return issueToken(PlayerClaims{
		PlatformID:       platformID,
		PlatformUserID:   platformUserID,
		PlatformUserName: platformUserName,
		AppKey:           appKey,
		TokenType:        tokenTypeAccess,
	}, cfg.Auth.JWT.AccessTokenTTL)
}

// IssueRefreshToken 为指定玩家签发刷新令牌
func IssueRefreshToken(platformID int8, platformUserID, platformUserName, appKey string) (string, error) {
	cfg := config.Get()
	if cfg == nil {
		return "", fmt.Errorf("config not loaded")
	}
	return issueToken(PlayerClaims{
		PlatformID:       platformID,
		PlatformUserID:   platformUserID,
		PlatformUserName: platformUserName,
		AppKey:           appKey,
		TokenType:        tokenTypeRefresh,
	}, cfg.Auth.JWT.RefreshTokenTTL)
}

// VerifyPlayerToken 验证请求携带的玩家访问令牌
// 只接受 access 类型；refresh 令牌仅用于换发，不能直接访问业务接口
func VerifyPlayerToken(ctx *beegocontext.Context) (*PlayerClaims, error) {
	authHeader := strings.TrimSpace(ctx.Input.Header("Authorization"))
	if authHeader == "" {
		return nil, ErrMissingToken
	}
	scheme, tokenString, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || tokenString == "" {
		return nil, ErrInvalidTokenFormat
	}

	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return []byte(cfg.Auth.JWT.Secret), nil
	})
	if err != nil {
		logger.Warn("player token parse failed", zap.Error(err))
		if strings.Contains(err.Error(), "expired") {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if IsTokenRevoked(ctx.Request.Context(), tokenString) {
		logger.Warn("revoked token presented",
			zap.Int8("platform_id", claims.PlatformID),
			zap.String("platform_user_id", claims.PlatformUserID))
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// RevokeToken 撤销 Token（写入黑名单，TTL 对齐剩余有效期）
func RevokeToken(ctx context.Context, tokenString string, expiresAt time.Time) error {
	rdb := infrds.Client()
	if rdb == nil {
		logger.Warn("redis not available, cannot revoke token")
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := rdb.SetEx(ctx, infrds.TokenDenyKey(tokenString), "1", ttl).Err(); err != nil {
		logger.Warn("token revoke write failed", zap.Error(err))
		return err
	}
	return nil
}

// IsTokenRevoked 检查 Token 是否已被撤销
// Redis 不可用或出错时放行：撤销是尽力而为的增强，不能把登录全部打挂
func IsTokenRevoked(ctx context.Context, tokenString string) bool {
	rdb := infrds.Client()
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, infrds.TokenDenyKey(tokenString)).Result()
	if err != nil {
		logger.Warn("token denylist check failed", zap.Error(err))
		return false
	}
	return n > 0
}

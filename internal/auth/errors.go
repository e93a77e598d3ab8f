package auth

import "errors"

// 平台接入(HMAC 签名)错误
var (
	ErrMissingAuthHeaders  = errors.New("missing authentication headers")
	ErrInvalidPlatform     = errors.New("unknown platform")
	ErrPlatformDisabled    = errors.New("platform disabled")
	ErrTimestampExpired    = errors.New("timestamp out of window")
	ErrNonceReused         = errors.New("nonce already used")
	ErrInvalidSignature    = errors.New("signature mismatch")
	ErrIPNotAllowed        = errors.New("ip address not allowed")
	ErrMissingPlatformUser = errors.New("missing platform user id")
	ErrInvalidPlatformUser = errors.New("invalid platform user id format")
)

// 玩家会话(JWT)错误
var (
	ErrMissingToken         = errors.New("missing authorization token")
	ErrInvalidTokenFormat   = errors.New("malformed bearer token")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrWrongTokenType       = errors.New("refresh token not accepted here")
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
)

// 后台口令错误
var (
	ErrInvalidAdminToken = errors.New("invalid admin token")
)

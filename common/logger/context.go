package logger

import "context"

type ctxKey struct{}

var traceIDKey ctxKey

// GetTraceID 取出 context 中携带的 trace id，没有则返回空串
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithTraceID 把 trace id 挂到 context 上，随调用链向下传递
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

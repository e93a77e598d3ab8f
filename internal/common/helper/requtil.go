package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 整数金额校验：下注额只接受整数卢比
var intStakeRe = regexp.MustCompile(`^[1-9]\d*$`)

// IsIntegerStake 判断下注额是否为正整数
func IsIntegerStake(s string) bool {
	return intStakeRe.MatchString(strings.TrimSpace(s))
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// WagerParsed 为解析后的下注入参（与控制器/服务层解耦）
type WagerParsed struct {
	RoundNo        int64  `json:"round_no"`
	Category       int    `json:"category"`
	Value          int    `json:"value"`
	Stake          string `json:"stake"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseWagerFromJSON 解析 JSON 到 WagerParsed。失败返回 false 与错误消息。
func ParseWagerFromJSON(r io.Reader) (WagerParsed, bool, string) {
	var out WagerParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return WagerParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

// ParseWagerFromForm 从表单读取字段并做强校验，返回 WagerParsed。失败返回 false 与可读错误信息。
func ParseWagerFromForm(ctx *beegocontext.Context) (WagerParsed, bool, string) {
	var out WagerParsed

	rnStr := strings.TrimSpace(ctx.Input.Query("round_no"))
	if rnStr == "" {
		return WagerParsed{}, false, "round_no required"
	}
	rn, err := strconv.ParseInt(rnStr, 10, 64)
	if err != nil {
		return WagerParsed{}, false, "round_no must be integer"
	}
	out.RoundNo = rn

	catStr := strings.TrimSpace(ctx.Input.Query("category"))
	if catStr == "" {
		return WagerParsed{}, false, "category required"
	}
	cn, err := strconv.Atoi(catStr)
	if err != nil {
		return WagerParsed{}, false, "category must be integer"
	}
	out.Category = cn

	// value: 仅 number 玩法需要，其余玩法忽略
	if vStr := strings.TrimSpace(ctx.Input.Query("value")); vStr != "" {
		vn, err := strconv.Atoi(vStr)
		if err != nil {
			return WagerParsed{}, false, "value must be integer"
		}
		out.Value = vn
	}

	out.Stake = strings.TrimSpace(ctx.Input.Query("stake"))
	if out.Stake == "" {
		return WagerParsed{}, false, "stake required"
	}

	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	if out.IdempotencyKey == "" {
		return WagerParsed{}, false, "idempotency_key required"
	}

	return out, true, ""
}

// ValidateWager 对通用字段做二次校验（适用于 JSON 与 FORM）。失败返回 false 与错误消息。
func ValidateWager(in *WagerParsed) (bool, string) {
	if in.RoundNo <= 0 {
		return false, "round_no required"
	}
	if in.Category < 1 || in.Category > 8 {
		return false, "category must be 1..8"
	}
	if in.Category == 1 && (in.Value < 0 || in.Value > 9) {
		return false, "value must be 0..9 for number bets"
	}
	if strings.TrimSpace(in.Stake) == "" || in.IdempotencyKey == "" {
		return false, "missing or invalid fields"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.IdempotencyKey) > 64 || len(in.Stake) > 32 {
		return false, "invalid request"
	}
	if !IsIntegerStake(in.Stake) {
		return false, "stake must be a positive integer amount"
	}
	return true, ""
}

// ParseAndValidateWager 按 Content-Type 自动解析并做统一校验
func ParseAndValidateWager(ctx *beegocontext.Context) (WagerParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseWagerFromJSON, ParseWagerFromForm)
	if !ok {
		return WagerParsed{}, false, msg
	}
	if ok, msg := ValidateWager(&out); !ok {
		return WagerParsed{}, false, msg
	}
	return out, true, ""
}

// -------- 管理接口 helpers --------

// ForceValueParsed 为后台预设中奖值入参
type ForceValueParsed struct {
	Value       int   `json:"value"`
	TargetRound int64 `json:"target_round"` // 0 表示下一局
}

// ParseForceValueFromJSON 仅接受数值型 value
func ParseForceValueFromJSON(r io.Reader) (ForceValueParsed, bool, string) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return ForceValueParsed{}, false, "invalid request"
	}
	out := ForceValueParsed{Value: -1}
	if v, ok := raw["value"].(float64); ok {
		out.Value = int(v)
	}
	if v, ok := raw["target_round"].(float64); ok {
		out.TargetRound = int64(v)
	}
	return out, true, ""
}

func ParseForceValueFromForm(ctx *beegocontext.Context) (ForceValueParsed, bool, string) {
	out := ForceValueParsed{Value: -1}
	if vs := strings.TrimSpace(ctx.Input.Query("value")); vs != "" {
		if n, err := strconv.Atoi(vs); err == nil {
			out.Value = n
		}
	}
	if ts := strings.TrimSpace(ctx.Input.Query("target_round")); ts != "" {
		if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
			out.TargetRound = n
		}
	}
	return out, true, ""
}

func ValidateForceValue(in *ForceValueParsed) (bool, string) {
	if in.Value < 0 || in.Value > 9 {
		return false, "value must be 0..9"
	}
	if in.TargetRound < 0 {
		return false, "target_round must be >= 0"
	}
	return true, ""
}

// ParseAndValidateForceValue 按 Content-Type 自动解析并校验
func ParseAndValidateForceValue(ctx *beegocontext.Context) (ForceValueParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseForceValueFromJSON, ParseForceValueFromForm)
	if !ok {
		return ForceValueParsed{}, false, msg
	}
	if ok, msg := ValidateForceValue(&out); !ok {
		return ForceValueParsed{}, false, msg
	}
	return out, true, ""
}

// ForcePhaseParsed 为后台强切阶段入参
type ForcePhaseParsed struct {
	Phase string `json:"phase"`
}

func ParseForcePhaseFromJSON(r io.Reader) (ForcePhaseParsed, bool, string) {
	var out ForcePhaseParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return ForcePhaseParsed{}, false, "invalid request"
	}
	return out, true, ""
}

func ParseForcePhaseFromForm(ctx *beegocontext.Context) (ForcePhaseParsed, bool, string) {
	var out ForcePhaseParsed
	out.Phase = strings.TrimSpace(ctx.Input.Query("phase"))
	return out, true, ""
}

func ValidateForcePhase(in *ForcePhaseParsed) (bool, string) {
	in.Phase = strings.TrimSpace(in.Phase)
	if in.Phase == "" {
		return false, "phase required"
	}
	if len(in.Phase) > 32 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateForcePhase(ctx *beegocontext.Context) (ForcePhaseParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseForcePhaseFromJSON, ParseForcePhaseFromForm)
	if !ok {
		return ForcePhaseParsed{}, false, msg
	}
	if ok, msg := ValidateForcePhase(&out); !ok {
		return ForcePhaseParsed{}, false, msg
	}
	return out, true, ""
}

// EmergencyStopParsed 为紧急停止入参，reason 可选
type EmergencyStopParsed struct {
	Reason string `json:"reason"`
}

func ParseEmergencyStopFromJSON(r io.Reader) (EmergencyStopParsed, bool, string) {
	var out EmergencyStopParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return EmergencyStopParsed{}, false, "invalid request"
	}
	return out, true, ""
}

func ParseEmergencyStopFromForm(ctx *beegocontext.Context) (EmergencyStopParsed, bool, string) {
	var out EmergencyStopParsed
	out.Reason = strings.TrimSpace(ctx.Input.Query("reason"))
	return out, true, ""
}

func ParseEmergencyStop(ctx *beegocontext.Context) (EmergencyStopParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseEmergencyStopFromJSON, ParseEmergencyStopFromForm)
	if !ok {
		return EmergencyStopParsed{}, false, msg
	}
	if len(out.Reason) > 256 {
		return EmergencyStopParsed{}, false, "invalid request"
	}
	return out, true, ""
}

package payout

import (
	"fmt"

	decimal "github.com/shopspring/decimal"
)

// 玩法类型（闭合枚举，入库为数值码+冗余字符串）
// 1=number 单号直选(0-9) 2=odd 单 3=even 双 4=small 小(0-4) 5=big 大(5-9)
// 6=red 红(2,4,6,8) 7=green 绿(1,3,7,9) 8=violet 紫(0,5)
type Category int8

const (
	CategoryNumber Category = 1
	CategoryOdd    Category = 2
	CategoryEven   Category = 3
	CategorySmall  Category = 4
	CategoryBig    Category = 5
	CategoryRed    Category = 6
	CategoryGreen  Category = 7
	CategoryViolet Category = 8
)

// DrawValueCount 开奖值域 {0..9}
const DrawValueCount = 10

var (
	ErrInvalidCategory = fmt.Errorf("invalid bet category")
	ErrInvalidValue    = fmt.Errorf("bet value out of range")
)

// 组合玩法覆盖的开奖值（固定表，避免运行期字符串匹配）
var coveredTable = map[Category][]int{
	CategoryOdd:    {1, 3, 5, 7, 9},
	CategoryEven:   {0, 2, 4, 6, 8},
	CategorySmall:  {0, 1, 2, 3, 4},
	CategoryBig:    {5, 6, 7, 8, 9},
	CategoryRed:    {2, 4, 6, 8},
	CategoryGreen:  {1, 3, 7, 9},
	CategoryViolet: {0, 5},
}

// Valid 玩法码是否合法
func (c Category) Valid() bool {
	return c >= CategoryNumber && c <= CategoryViolet
}

// Composite 是否为组合玩法（需要拆分为多个单值子注）
func (c Category) Composite() bool {
	_, ok := coveredTable[c]
	return ok
}

func (c Category) String() string {
	switch c {
	case CategoryNumber:
		return "number"
	case CategoryOdd:
		return "odd"
	case CategoryEven:
		return "even"
	case CategorySmall:
		return "small"
	case CategoryBig:
		return "big"
	case CategoryRed:
		return "red"
	case CategoryGreen:
		return "green"
	case CategoryViolet:
		return "violet"
	default:
		return ""
	}
}

// FromCode 数值码转玩法（API层传 int）
func FromCode(code int) (Category, error) {
	c := Category(code)
	if !c.Valid() {
		return 0, ErrInvalidCategory
	}
	return c, nil
}

// CoveredValues 返回该玩法命中的开奖值集合
// number 玩法需要传 value；组合玩法忽略 value
func CoveredValues(c Category, value int) ([]int, error) {
	if c == CategoryNumber {
		if value < 0 || value >= DrawValueCount {
			return nil, ErrInvalidValue
		}
		return []int{value}, nil
	}
	vs, ok := coveredTable[c]
	if !ok {
		return nil, ErrInvalidCategory
	}
	// 返回副本，防止调用方改动固定表
	out := make([]int, len(vs))
	copy(out, vs)
	return out, nil
}

// Covers 开奖值是否命中该玩法
func Covers(c Category, value int, drawn int) bool {
	vs, err := CoveredValues(c, value)
	if err != nil {
		return false
	}
	for _, v := range vs {
		if v == drawn {
			return true
		}
	}
	return false
}

// SubBet 拆分后的单值子注
type SubBet struct {
	Value int
	Stake decimal.Decimal
}

// ExpandBet 将一笔投注拆分为单值子注
// 规则：
// 1. number 玩法：1 个子注，注金 = 全额
// 2. 组合玩法：按覆盖值等额拆分，每份向上取整到分（paise）
// 3. 实际扣款 = 各子注之和，可能大于名义注金（确定性的向上取整分摊）
//
// 示例：odd 玩法 100 元 -> 5 个子注各 20.00，扣款 100.00
//
//	red 玩法 100 元 -> 4 个子注各 25.00，扣款 100.00
//	violet 玩法 1 元 -> 2 个子注各 0.50，扣款 1.00
//	odd 玩法 1 元 -> 5 个子注各 0.20，扣款 1.00
//	green 玩法 10 元 -> 4 个子注各 2.50，扣款 10.00
//	odd 玩法 7 元 -> 5 个子注各 1.40，扣款 7.00
//	red 玩法 7 元 -> 4 个子注各 1.75，扣款 7.00
//	（整数注金按两位小数分摊后不能整除时每份向上取整，合计可能多出若干分）
func ExpandBet(c Category, value int, stake decimal.Decimal) ([]SubBet, decimal.Decimal, error) {
	vs, err := CoveredValues(c, value)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if stake.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("stake must be positive")
	}

	n := decimal.NewFromInt(int64(len(vs)))
	// 每份注金：向上取整到 2 位小数，保证每个子注独立可结算
	per := stake.Div(n).RoundUp(2)

	subs := make([]SubBet, 0, len(vs))
	total := decimal.Zero
	for _, v := range vs {
		subs = append(subs, SubBet{Value: v, Stake: per})
		total = total.Add(per)
	}
	return subs, total, nil
}

// CalculatePayout 计算派彩（纯函数，无副作用）
// 未命中返回 0；命中返回 注金 × 赔率（直选与子注统一按单值赔率）
// 重要：下注时已扣款，派彩即用户入账金额
func CalculatePayout(c Category, value int, stake decimal.Decimal, drawn int, multiplier decimal.Decimal) decimal.Decimal {
	if drawn < 0 || drawn >= DrawValueCount {
		return decimal.Zero
	}
	if !Covers(c, value, drawn) {
		return decimal.Zero
	}
	return stake.Mul(multiplier).Round(2)
}

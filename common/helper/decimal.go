package helper

import "github.com/shopspring/decimal"

// FormatMoney 金额统一输出：四舍五入保留两位小数
// 不可用截断，截断会让对账差出分位
func FormatMoney(val decimal.Decimal) string {
	return val.StringFixed(2)
}

package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Amount 已正規化的金額：最小貨幣單位、嚴格正整數
type Amount int64

func (a Amount) Int64() int64 {
	return int64(a)
}

// ParseAmount 將外部傳入、型別不明的金額正規化
// 任何業務規則執行前都必須先經過這一步
//
// 參數:
//
//	v: 任何來源的金額 (JSON 數字、字串、Go 整數或浮點數)
//
// 回傳:
//
//	Amount: 正整數金額
//	error: ErrInvalidAmount
func ParseAmount(v any) (Amount, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, ErrInvalidAmount
	case Amount:
		n = int64(x)
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint32:
		n = int64(x)
	case float64:
		f, ok := integral(x)
		if !ok {
			return 0, ErrInvalidAmount
		}
		n = f
	case float32:
		f, ok := integral(float64(x))
		if !ok {
			return 0, ErrInvalidAmount
		}
		n = f
	case json.Number:
		return ParseAmount(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, ErrInvalidAmount
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// "500.0" 這種寫法也接受，但 "500.5" 不接受
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, ErrInvalidAmount
			}
			fi, ok := integral(f)
			if !ok {
				return 0, ErrInvalidAmount
			}
			i = fi
		}
		n = i
	default:
		return 0, ErrInvalidAmount
	}
	if n <= 0 {
		return 0, ErrInvalidAmount
	}
	return Amount(n), nil
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64/2 || f < math.MinInt64/2 {
		return 0, false
	}
	return int64(f), true
}

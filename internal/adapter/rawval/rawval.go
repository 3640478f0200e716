// Package rawval 提供对厂家原始载荷的防御式取值与类型矫正。
//
// 厂家 API 的字段名、嵌套层级、标量类型都随端点和账号区域漂移，
// 这里统一做"安全标量"矫正：数字/数字字符串可用，意外的 map/list 返回未命中，
// 避免单个字段的形状变化拖垮整条记录。
package rawval

import (
	"encoding/json"
	"strconv"
)

// Float 安全提取浮点标量
// 接受 float/int/json.Number/数字字符串；单元素列表解开一层；其余形状未命中
func Float(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []any:
		// 厂家偶尔把标量包成单元素列表
		if len(val) == 1 {
			return Float(val[0])
		}
		return 0, false
	default:
		return 0, false
	}
}

// Int 安全提取整型标量（经 Float 矫正后取整）
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// String 安全提取字符串标量
func String(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Map 安全提取子对象
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Dig 沿 path 逐层下钻嵌套对象，任一层缺失返回 nil
func Dig(v any, path ...string) any {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// FirstFloat 按候选键优先级在 bag 中取第一个可矫正的浮点值
func FirstFloat(bag map[string]any, keys ...string) (float64, bool) {
	if bag == nil {
		return 0, false
	}
	for _, key := range keys {
		if raw, ok := bag[key]; ok {
			if f, ok := Float(raw); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// FirstInt 按候选键优先级取第一个可矫正的整型值
func FirstInt(bag map[string]any, keys ...string) (int, bool) {
	f, ok := FirstFloat(bag, keys...)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// FirstString 按候选键优先级取第一个非空字符串
func FirstString(bag map[string]any, keys ...string) (string, bool) {
	if bag == nil {
		return "", false
	}
	for _, key := range keys {
		if raw, ok := bag[key]; ok {
			if s, ok := String(raw); ok {
				return s, true
			}
		}
	}
	return "", false
}

// DurationMinutes 把厂家时长换算为分钟
// 厂家通常给秒，个别端点给毫秒——按量级启发式判断：>86400 视为毫秒
func DurationMinutes(raw float64) int {
	if raw > 86400 {
		raw = raw / 1000
	}
	return int(raw / 60)
}

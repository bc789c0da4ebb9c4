package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Row 表格中的一行，字段名到值的映射（与 Baserow user_field_names 一致）
type Row map[string]interface{}

// Table 表格元信息
type Table struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ID 返回行主键，没有时为 0
func (r Row) ID() int64 {
	id, _ := r.Int("id")
	return id
}

// Int 解析整数字段
// 缺失或空值返回 (0, true)；无法解析返回 (0, false)
func (r Row) Int(field string) (int64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, true
	}
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		return floatToInt(val)
	case json.Number:
		return parseIntString(val.String())
	case string:
		return parseIntString(val)
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IntOrZero 解析整数字段，失败时按 0 处理
func (r Row) IntOrZero(field string) int64 {
	n, ok := r.Int(field)
	if !ok {
		return 0
	}
	return n
}

// parseIntString 支持 "12"、" 12 " 以及 Baserow 小数字段返回的 "1500.00"
func parseIntString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatToInt(f)
}

// floatToInt 截断小数；NaN、无穷与超出 int64 范围视为解析失败
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// String 读取字符串字段
// 单选字段 {"id":1,"value":"Штраф"} 取 value；其它非字符串类型返回空串
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if s, ok := val["value"].(string); ok {
			return s
		}
	}
	return ""
}

// Preview 去掉内部字段（以下划线开头）后的可读文本
func (r Row) Preview() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, r[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

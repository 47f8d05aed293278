package utils

import "time"

// ParseDurationOr 解析时长字符串, 解析失败或为空时返回默认值
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

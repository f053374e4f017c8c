package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 是支持 JSON 解析的 time.Duration 包装类型
//
// 支持的格式:
//   - 字符串: "7200s", "2h", "20m" 等
//   - 数字: 秒数（与网关租期单位一致）
//
// 使用示例:
//
//	type MappingConfig struct {
//	    TTL Duration `json:"ttl"`
//	}
//
//	// JSON: {"ttl": "2h"} 或 {"ttl": 7200}
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		duration, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration string %q: %w", s, err)
		}
		*d = Duration(duration)
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	return fmt.Errorf("duration must be a string (e.g., \"2h\") or number (seconds)")
}

// MarshalJSON 输出为人类可读的字符串格式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration 返回底层的 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Seconds 返回整秒数
func (d Duration) Seconds() uint32 {
	return uint32(time.Duration(d) / time.Second)
}

// String 返回字符串表示
func (d Duration) String() string {
	return time.Duration(d).String()
}

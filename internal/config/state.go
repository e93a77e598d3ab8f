package config

import "sync/atomic"

// 当前生效配置的原子快照；热更新整体替换，读取方不加锁
var current atomic.Value // *Config

func SetCurrent(c *Config) {
	current.Store(c)
}

func GetCurrent() *Config {
	v, _ := current.Load().(*Config)
	return v
}

// GetFeatureFlag 功能开关查询，未配置按关闭处理
func GetFeatureFlag(name string) bool {
	cfg := GetCurrent()
	if cfg == nil || cfg.FeatureFlags == nil {
		return false
	}
	return cfg.FeatureFlags[name]
}

// GetThreshold 业务阈值查询，未配置返回给定默认值
func GetThreshold(name string, def int64) int64 {
	cfg := GetCurrent()
	if cfg == nil || cfg.Thresholds == nil {
		return def
	}
	if v, ok := cfg.Thresholds[name]; ok {
		return v
	}
	return def
}

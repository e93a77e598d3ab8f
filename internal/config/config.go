package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// Config 与 Etcd 中的配置结构对应
// 注意：时间字段统一使用毫秒时间戳
// 可按需扩展字段

type Config struct {
	Server struct {
		Port     int    `yaml:"port" json:"port"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"server" json:"server"`

	Database struct {
		DSN                string `yaml:"dsn" json:"dsn"`
		MaxOpenConns       int    `yaml:"max_open_conns" json:"max_open_conns"`
		MaxIdleConns       int    `yaml:"max_idle_conns" json:"max_idle_conns"`
		ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" json:"conn_max_lifetime_sec"`
	} `yaml:"database" json:"database"`

	Redis struct {
		Addr     string `yaml:"addr" json:"addr"`
		Password string `yaml:"password" json:"password"`
		DB       int    `yaml:"db" json:"db"`
	} `yaml:"redis" json:"redis"`

	RocketMQ struct {
		NameServer    string `yaml:"name_server" json:"name_server"`
		ProducerGroup string `yaml:"producer_group" json:"producer_group"`
		ConsumerGroup string `yaml:"consumer_group" json:"consumer_group"`
		TopicSettle   string `yaml:"topic_settle" json:"topic_settle"`
		AccessKey     string `yaml:"access_key" json:"access_key"`
		SecretKey     string `yaml:"secret_key" json:"secret_key"`
	} `yaml:"rocketmq" json:"rocketmq"`

	Observability struct {
		EnableProm   bool   `yaml:"enable_prom" json:"enable_prom"`
		PromAddr     string `yaml:"prom_addr" json:"prom_addr"`
		EnableTrace  bool   `yaml:"enable_trace" json:"enable_trace"`
		OtlpEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	} `yaml:"observability" json:"observability"`

	Auth struct {
		DemoMode bool `yaml:"demo_mode" json:"demo_mode"` // 演示模式开关
		JWT      struct {
			Secret          string `yaml:"secret" json:"secret"`
			AccessTokenTTL  int    `yaml:"access_token_ttl" json:"access_token_ttl"`   // 秒
			RefreshTokenTTL int    `yaml:"refresh_token_ttl" json:"refresh_token_ttl"` // 秒
			Issuer          string `yaml:"issuer" json:"issuer"`
		} `yaml:"jwt" json:"jwt"`
		Admin struct {
			Enabled bool   `yaml:"enabled" json:"enabled"`
			Token   string `yaml:"token" json:"token"`
		} `yaml:"admin" json:"admin"`
		DemoPlatform struct {
			PlatformID int8   `yaml:"platform_id" json:"platform_id"`
			AppKey     string `yaml:"app_key" json:"app_key"`
			AppSecret  string `yaml:"app_secret" json:"app_secret"`
			Name       string `yaml:"name" json:"name"`
		} `yaml:"demo_platform" json:"demo_platform"`
		Platforms []PlatformConfig `yaml:"platforms" json:"platforms"`
	} `yaml:"auth" json:"auth"`

	RateLimit struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
		Global  struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			Burst             int `yaml:"burst" json:"burst"`
		} `yaml:"global" json:"global"`
		ByIP struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			Burst             int `yaml:"burst" json:"burst"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_ip" json:"by_ip"`
		ByUser struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			Burst             int `yaml:"burst" json:"burst"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_user" json:"by_user"`
		ByPlatform struct {
			RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
			Burst             int `yaml:"burst" json:"burst"`
			WindowSeconds     int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_platform" json:"by_platform"`
	} `yaml:"rate_limit" json:"rate_limit"`

	CORS struct {
		Enabled          bool     `yaml:"enabled" json:"enabled"`
		AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins"`
		AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods"`
		AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers"`
		ExposedHeaders   []string `yaml:"exposed_headers" json:"exposed_headers"`
		AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials"`
		MaxAge           int      `yaml:"max_age" json:"max_age"`
	} `yaml:"cors" json:"cors"`

	Game GameConfig `yaml:"game" json:"game"`

	// 第一步动态配置：功能开关与业务阈值
	FeatureFlags map[string]bool  `yaml:"feature_flags" json:"feature_flags"`
	Thresholds   map[string]int64 `yaml:"thresholds" json:"thresholds"`
}

// GameConfig 回合引擎与投注规则配置
// 阶段时长单位为秒；金额为整数卢比
type GameConfig struct {
	BettingSec    int `yaml:"betting_sec" json:"betting_sec"`
	SpinPrepSec   int `yaml:"spin_prep_sec" json:"spin_prep_sec"`
	SpinningSec   int `yaml:"spinning_sec" json:"spinning_sec"`
	ResultSec     int `yaml:"result_sec" json:"result_sec"`
	TransitionSec int `yaml:"transition_sec" json:"transition_sec"`

	MinStake int64 `yaml:"min_stake" json:"min_stake"` // 单注下限（整数卢比）
	MaxStake int64 `yaml:"max_stake" json:"max_stake"` // 单注上限
	// 投注资格门槛：betting_balance 低于该值即拒单（与注金无关）
	MinBettingBalance float64 `yaml:"min_betting_balance" json:"min_betting_balance"`
	// 同一玩家同一回合最多可投的不同玩法数
	MaxCategoriesPerRound int `yaml:"max_categories_per_round" json:"max_categories_per_round"`

	Multiplier      float64 `yaml:"multiplier" json:"multiplier"`             // 单值命中赔率
	CashbackPercent float64 `yaml:"cashback_percent" json:"cashback_percent"` // 输单返现比例 0~1
	CashbackDays    int     `yaml:"cashback_days" json:"cashback_days"`       // betting 钱包输单返现的摊还天数
	CashbackHour    int     `yaml:"cashback_hour" json:"cashback_hour"`       // 每日发放小时（0-23）
	Currency        string  `yaml:"currency" json:"currency"`
}

// Normalize 为空缺字段补默认值（文件/配置中心可以只写覆盖项）
func (g *GameConfig) Normalize() {
	if g.BettingSec <= 0 {
		g.BettingSec = 30
	}
	if g.SpinPrepSec <= 0 {
		g.SpinPrepSec = 3
	}
	if g.SpinningSec <= 0 {
		g.SpinningSec = 5
	}
	if g.ResultSec <= 0 {
		g.ResultSec = 5
	}
	if g.TransitionSec <= 0 {
		g.TransitionSec = 2
	}
	if g.MinStake <= 0 {
		g.MinStake = 10
	}
	if g.MaxStake <= 0 {
		g.MaxStake = 100000
	}
	if g.MinBettingBalance <= 0 {
		g.MinBettingBalance = 30
	}
	if g.MaxCategoriesPerRound <= 0 {
		g.MaxCategoriesPerRound = 2
	}
	if g.Multiplier <= 0 {
		g.Multiplier = 9
	}
	if g.CashbackPercent <= 0 {
		g.CashbackPercent = 0.10
	}
	if g.CashbackDays <= 0 {
		g.CashbackDays = 9
	}
	if g.CashbackHour < 0 || g.CashbackHour > 23 {
		g.CashbackHour = 2
	}
	if g.Currency == "" {
		g.Currency = "INR"
	}
}

// PlatformConfig 平台配置
type PlatformConfig struct {
	PlatformID int8     `yaml:"platform_id" json:"platform_id"`
	AppKey     string   `yaml:"app_key" json:"app_key"`
	AppSecret  string   `yaml:"app_secret" json:"app_secret"`
	Name       string   `yaml:"name" json:"name"`
	Status     int8     `yaml:"status" json:"status"`
	RateLimit  int      `yaml:"rate_limit" json:"rate_limit"`
	AllowedIPs []string `yaml:"allowed_ips" json:"allowed_ips"`
}

// Load 按优先级依次尝试 Nacos、etcd、本地文件，任一来源成功即返回
// 来源由环境变量选择：
//   - NACOS_SERVER_ADDR + NACOS_DATA_ID 存在则走配置中心
//   - 否则 ETCD_ENDPOINTS + ETCD_CONFIG_KEY 存在则走 etcd
//   - 最后兜底 CONFIG_FILE（默认 config/dev.json）
func Load(ctx context.Context) (*Config, error) {
	type source struct {
		name    string
		enabled bool
		load    func(context.Context) (*Config, error)
	}
	configFile := getEnvOrDefault("CONFIG_FILE", "config/dev.json")
	sources := []source{
		{"Nacos", strings.TrimSpace(os.Getenv("NACOS_SERVER_ADDR")) != "", loadFromNacos},
		{"etcd", strings.TrimSpace(os.Getenv("ETCD_ENDPOINTS")) != "", loadFromEtcd},
		{"file", true, func(context.Context) (*Config, error) { return loadFromFile(configFile) }},
	}

	var lastErr error
	for _, s := range sources {
		if !s.enabled {
			continue
		}
		cfg, err := s.load(ctx)
		if err != nil {
			fmt.Printf("[Config] %s 配置加载失败, 尝试下一来源: error=%v\n", s.name, err)
			lastErr = err
			continue
		}
		fmt.Printf("[Config] 配置已从 %s 加载\n", s.name)
		return cfg, nil
	}
	return nil, fmt.Errorf("no config source succeeded (file=%s): %w", configFile, lastErr)
}

// getEnvOrDefault 读取环境变量，空白按未设置处理
func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// decodeConfig 按 hint 的扩展名选择 JSON/YAML；无扩展名时先 YAML 后 JSON
func decodeConfig(hint string, data []byte) (*Config, error) {
	var cfg Config
	switch filepath.Ext(hint) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if yerr := yaml.Unmarshal(data, &cfg); yerr != nil {
			if jerr := json.Unmarshal(data, &cfg); jerr != nil {
				return nil, fmt.Errorf("parse config (yaml=%v, json=%v)", yerr, jerr)
			}
		}
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	ext := filepath.Ext(path)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return decodeConfig(path, data)
}

func loadFromEtcd(ctx context.Context) (*Config, error) {
	key := strings.TrimSpace(os.Getenv("ETCD_CONFIG_KEY"))
	if key == "" {
		return nil, errors.New("ETCD_CONFIG_KEY not set")
	}
	dialTimeout := 5 * time.Second
	if v := strings.TrimSpace(os.Getenv("ETCD_DIAL_TIMEOUT_SEC")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			dialTimeout = d
		}
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints(),
		DialTimeout: dialTimeout,
		Username:    os.Getenv("ETCD_USERNAME"),
		Password:    os.Getenv("ETCD_PASSWORD"),
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect: %w", err)
	}
	defer cli.Close()

	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := cli.Get(getCtx, key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key not found: %s", key)
	}
	return decodeConfig(key, resp.Kvs[0].Value)
}

func etcdEndpoints() []string {
	raw := strings.Split(os.Getenv("ETCD_ENDPOINTS"), ",")
	endpoints := make([]string, 0, len(raw))
	for _, ep := range raw {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// loadFromNacos 从配置中心拉取一次全量配置；连接参数见 readNacosEnv
func loadFromNacos(_ context.Context) (*Config, error) {
	env, err := readNacosEnv()
	if err != nil {
		return nil, err
	}
	client, err := newNacosClient(env)
	if err != nil {
		return nil, err
	}

	content, err := client.GetConfig(vo.ConfigParam{DataId: env.dataID, Group: env.group})
	if err != nil {
		return nil, fmt.Errorf("nacos get config: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("nacos config empty: dataId=%s, group=%s", env.dataID, env.group)
	}
	return decodeConfig(env.dataID, []byte(content))
}

// nacosConfigClient 监听用的全局客户端，由 startNacosWatch 赋值
var nacosConfigClient config_client.IConfigClient

// Set 切换全局配置，补齐游戏段默认值后整体替换
func Set(cfg *Config) {
	if cfg != nil {
		cfg.Game.Normalize()
	}
	SetCurrent(cfg)
}

// Get 返回当前生效配置
func Get() *Config {
	return GetCurrent()
}

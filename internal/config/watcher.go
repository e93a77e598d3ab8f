package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// StartWatch 监听配置热更新
// 监听源与加载源一致：Nacos 优先，其次 etcd；只用本地文件时无监听
// 每次变更解析成功后整体替换当前配置并回调 onChange(old, new)
func StartWatch(ctx context.Context, onChange func(oldCfg, newCfg *Config)) error {
	if strings.TrimSpace(os.Getenv("NACOS_SERVER_ADDR")) != "" {
		return startNacosWatch(ctx, onChange)
	}
	if strings.TrimSpace(os.Getenv("ETCD_ENDPOINTS")) != "" {
		return startEtcdWatch(ctx, onChange)
	}
	fmt.Println("[Config] 本地文件配置，跳过热更新监听")
	return nil
}

// applyRaw 解析配置中心推送的原文并切换当前配置
func applyRaw(source, hint string, data []byte, onChange func(oldCfg, newCfg *Config)) {
	newCfg, err := decodeConfig(hint, data)
	if err != nil {
		fmt.Printf("[Config] %s 配置解析失败, 保持旧配置: error=%v\n", source, err)
		return
	}

	oldCfg := GetCurrent()
	Set(newCfg)
	if onChange != nil {
		onChange(oldCfg, newCfg)
	}
	fmt.Printf("[Config] %s 配置已更新\n", source)
}

type nacosEnv struct {
	servers   []constant.ServerConfig
	dataID    string
	namespace string
	group     string
	username  string
	password  string
	timeoutMS int
}

func readNacosEnv() (*nacosEnv, error) {
	e := &nacosEnv{
		dataID:    strings.TrimSpace(os.Getenv("NACOS_DATA_ID")),
		namespace: getEnvOrDefault("NACOS_NAMESPACE", "public"),
		group:     getEnvOrDefault("NACOS_GROUP", "DEFAULT_GROUP"),
		username:  strings.TrimSpace(os.Getenv("NACOS_USERNAME")),
		password:  strings.TrimSpace(os.Getenv("NACOS_PASSWORD")),
		timeoutMS: 5000,
	}
	if e.dataID == "" {
		return nil, errors.New("NACOS_DATA_ID not set")
	}
	if v := strings.TrimSpace(os.Getenv("NACOS_TIMEOUT_MS")); v != "" {
		if t, err := strconv.Atoi(v); err == nil && t > 0 {
			e.timeoutMS = t
		}
	}
	for _, addr := range strings.Split(os.Getenv("NACOS_SERVER_ADDR"), ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portStr, found := strings.Cut(addr, ":")
		if !found {
			return nil, fmt.Errorf("invalid NACOS_SERVER_ADDR format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in NACOS_SERVER_ADDR: %s", portStr)
		}
		e.servers = append(e.servers, constant.ServerConfig{IpAddr: host, Port: port})
	}
	if len(e.servers) == 0 {
		return nil, errors.New("no valid server address in NACOS_SERVER_ADDR")
	}
	return e, nil
}

// newNacosClient 按 nacosEnv 构造配置中心客户端，加载与监听共用
func newNacosClient(env *nacosEnv) (config_client.IConfigClient, error) {
	clientCfg := constant.ClientConfig{
		NamespaceId:         env.namespace,
		TimeoutMs:           uint64(env.timeoutMS),
		NotLoadCacheAtStart: true,
		LogDir:              "/tmp/nacos/log",
		CacheDir:            "/tmp/nacos/cache",
		LogLevel:            "warn",
	}
	if env.username != "" && env.password != "" {
		clientCfg.Username = env.username
		clientCfg.Password = env.password
	}
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientCfg,
		ServerConfigs: env.servers,
	})
	if err != nil {
		return nil, fmt.Errorf("create nacos config client: %w", err)
	}
	return client, nil
}

// nacosListen 记录当前监听的配置项，供 StopWatch 取消
var nacosListen struct {
	dataID string
	group  string
}

// StopWatch 取消 Nacos 配置监听；etcd 监听随根 ctx 结束无需单独处理
func StopWatch() {
	if nacosConfigClient == nil {
		return
	}
	err := nacosConfigClient.CancelListenConfig(vo.ConfigParam{
		DataId: nacosListen.dataID,
		Group:  nacosListen.group,
	})
	if err != nil {
		fmt.Printf("[Config] 取消 Nacos 配置监听失败: error=%v\n", err)
	}
}

func startNacosWatch(_ context.Context, onChange func(oldCfg, newCfg *Config)) error {
	env, err := readNacosEnv()
	if err != nil {
		return err
	}
	configClient, err := newNacosClient(env)
	if err != nil {
		return err
	}
	nacosConfigClient = configClient
	nacosListen.dataID = env.dataID
	nacosListen.group = env.group

	err = configClient.ListenConfig(vo.ConfigParam{
		DataId: env.dataID,
		Group:  env.group,
		OnChange: func(namespace, group, dataID, data string) {
			fmt.Printf("[Config] Nacos 配置变更: namespace=%s, group=%s, dataId=%s\n",
				namespace, group, dataID)
			applyRaw("Nacos", dataID, []byte(data), onChange)
		},
	})
	if err != nil {
		return fmt.Errorf("listen nacos config failed: %w", err)
	}

	fmt.Printf("[Config] Nacos 配置监听已启动: dataId=%s, namespace=%s, group=%s\n",
		env.dataID, env.namespace, env.group)
	return nil
}

// startEtcdWatch 监听 etcd 配置 key 的 PUT 事件
// watch 协程随 ctx 结束，进程退出时自动收敛
func startEtcdWatch(ctx context.Context, onChange func(oldCfg, newCfg *Config)) error {
	key := strings.TrimSpace(os.Getenv("ETCD_CONFIG_KEY"))
	if key == "" {
		return errors.New("ETCD_CONFIG_KEY not set")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints: etcdEndpoints(),
		Username:  os.Getenv("ETCD_USERNAME"),
		Password:  os.Getenv("ETCD_PASSWORD"),
	})
	if err != nil {
		return fmt.Errorf("create etcd watch client failed: %w", err)
	}

	go func() {
		defer cli.Close()
		for resp := range cli.Watch(ctx, key) {
			if err := resp.Err(); err != nil {
				fmt.Printf("[Config] etcd watch 错误: error=%v\n", err)
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				fmt.Printf("[Config] etcd 配置变更: key=%s\n", key)
				applyRaw("etcd", key, ev.Kv.Value, onChange)
			}
		}
	}()

	fmt.Printf("[Config] etcd 配置监听已启动: key=%s\n", key)
	return nil
}

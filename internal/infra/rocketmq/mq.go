package rocketmq

import (
	"context"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"
	beego "github.com/beego/beego/v2/server/web"
	"github.com/pkg/errors"

	"github.com/rahul3988/cp-win5-sub001/common/logger"

	"go.uber.org/zap"
)

// Publisher 发送侧最小门面；outbox 调度器只依赖这个接口
type Publisher interface {
	Publish(topic string, body []byte) error
}

var (
	initOnce sync.Once
	enabled  bool
	prod     rmq.Producer
	pub      Publisher
)

// Enabled MQ 是否配置齐全且 producer 启动成功
func Enabled() bool { initOnce.Do(initMQ); return enabled }

// PublisherInstance 返回当前 publisher；未启用时为丢弃型 stub
func PublisherInstance() Publisher {
	initOnce.Do(initMQ)
	if pub == nil {
		pub = &stubPublisher{}
	}
	return pub
}

type rmqPublisher struct{ p rmq.Producer }

func (r *rmqPublisher) Publish(topic string, body []byte) error {
	if r.p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.p.Send(ctx, &rmq.Message{Topic: topic, Body: body}); err != nil {
		return errors.Wrapf(err, "publish topic %s", topic)
	}
	return nil
}

// stubPublisher：未配置 MQ 的环境直接丢消息并告警，业务数据仍在 outbox 表里
type stubPublisher struct{}

func (s *stubPublisher) Publish(topic string, body []byte) error {
	logger.Warn("[mq disabled] drop message", zap.String("topic", topic))
	return nil
}

type mqConf struct {
	endpoint string
	ak       string
	sk       string
	topics   []string
}

// readMQConf 从 app.conf 读取 MQ 配置；endpoint 为空表示本环境不启用
func readMQConf() mqConf {
	var c mqConf
	c.endpoint, _ = beego.AppConfig.String("rocketmq_endpoint")
	if c.endpoint == "" {
		// 兼容早期配置键
		c.endpoint, _ = beego.AppConfig.String("rocketmq_namesrv")
	}
	// endpoint 清洗：去 scheme、多地址只取第一个
	c.endpoint = strings.TrimSpace(c.endpoint)
	c.endpoint = strings.TrimPrefix(strings.TrimPrefix(c.endpoint, "http://"), "https://")
	if idx := strings.IndexAny(c.endpoint, ",;"); idx > 0 {
		c.endpoint = strings.TrimSpace(c.endpoint[:idx])
	}

	c.ak, _ = beego.AppConfig.String("rocketmq_access_key")
	c.sk, _ = beego.AppConfig.String("rocketmq_secret_key")

	topicsStr, _ := beego.AppConfig.String("rocketmq_producer_topics")
	for _, t := range strings.Split(topicsStr, ",") {
		t = strings.TrimSpace(strings.ReplaceAll(t, ".", "_"))
		if t != "" {
			c.topics = append(c.topics, t)
		}
	}
	return c
}

func initMQ() {
	// SDK 默认往 /logs 写文件日志，重置掉
	rmq.ResetLogger()

	conf := readMQConf()
	if conf.endpoint == "" {
		enabled = false
		pub = &stubPublisher{}
		return
	}
	// 凭证不全时禁用：底层 SDK 在 Sign 阶段会对空凭证空指针
	if strings.TrimSpace(conf.ak) == "" || strings.TrimSpace(conf.sk) == "" {
		enabled = false
		pub = &stubPublisher{}
		logger.Warn("rocketmq disabled: endpoint present but access/secret key missing")
		return
	}

	cfg := &rmq.Config{Endpoint: conf.endpoint}
	cfg.Credentials = &credentials.SessionCredentials{AccessKey: conf.ak, AccessSecret: conf.sk}

	var opts []rmq.ProducerOption
	if len(conf.topics) > 0 {
		opts = append(opts, rmq.WithTopics(conf.topics...))
	}

	p, err := rmq.NewProducer(cfg, opts...)
	if err != nil {
		logger.Error("rocketmq producer init failed", zap.Error(err))
		enabled = false
		pub = &stubPublisher{}
		return
	}

	// 异步启动，broker 不可达时不拖住进程起服
	startDone := make(chan error, 1)
	go func() { startDone <- p.Start() }()

	select {
	case err := <-startDone:
		if err != nil {
			logger.Warn("rocketmq producer start failed, using stub publisher", zap.Error(err))
			enabled = false
			pub = &stubPublisher{}
			return
		}
		prod = p
		pub = &rmqPublisher{p: p}
		enabled = true
		logger.Info("rocketmq enabled",
			zap.String("endpoint", conf.endpoint), zap.Strings("topics", conf.topics))
	case <-time.After(2 * time.Second):
		logger.Warn("rocketmq producer start timeout, using stub publisher")
		enabled = false
		pub = &stubPublisher{}
	}
}

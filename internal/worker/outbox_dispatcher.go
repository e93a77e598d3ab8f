package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"
	beego "github.com/beego/beego/v2/server/web"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infmq "github.com/rahul3988/cp-win5-sub001/internal/infra/rocketmq"
	"github.com/rahul3988/cp-win5-sub001/internal/model"

	"go.uber.org/zap"
)

const (
	outboxScanInterval = 1 * time.Second
	outboxScanBatch    = 100
)

// StartOutboxDispatcher 启动 outbox 转发循环
// 每秒扫一批待投递事件发往 MQ，成功标记 sent、失败累计重试；MQ 未启用时不起协程
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup) {
	if !infmq.Enabled() {
		return
	}
	wg.Add(1)
	pub := infmq.PublisherInstance()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(outboxScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dispatchBatch(ctx, pub)
			}
		}
	}()
}

func dispatchBatch(ctx context.Context, pub infmq.Publisher) {
	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	rows, err := model.ListOutboxPending(c, infmysql.SQLX(), outboxScanBatch)
	cancel()
	if err != nil {
		logger.Warn("outbox: list pending failed", zap.Error(err))
		return
	}
	for _, r := range rows {
		if err := pub.Publish(r.Topic, []byte(r.Payload)); err != nil {
			_ = model.MarkOutboxFailed(ctx, infmysql.SQLX(), r.ID, truncateErr(err))
			continue
		}
		if err := model.MarkOutboxSent(ctx, infmysql.SQLX(), r.ID); err != nil {
			logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
		}
	}
}

// last_error 列只有 255，错误文本裁一下
func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}

type consumerConf struct {
	endpoint string
	group    string
	ak       string
	sk       string
	subs     map[string]*rmq.FilterExpression
}

func readConsumerConf() (consumerConf, bool) {
	var c consumerConf
	c.endpoint, _ = beego.AppConfig.String("rocketmq_endpoint")
	if c.endpoint == "" {
		c.endpoint, _ = beego.AppConfig.String("rocketmq_namesrv")
	}
	if c.endpoint == "" {
		return c, false
	}
	c.endpoint = strings.TrimSpace(c.endpoint)
	c.endpoint = strings.TrimPrefix(strings.TrimPrefix(c.endpoint, "http://"), "https://")
	if idx := strings.IndexAny(c.endpoint, ",;"); idx > 0 {
		c.endpoint = strings.TrimSpace(c.endpoint[:idx])
	}

	c.group, _ = beego.AppConfig.String("rocketmq_consumer_group")
	if c.group == "" {
		logger.Warn("[mq] consumer not started: empty rocketmq_consumer_group")
		return c, false
	}
	topicsStr, _ := beego.AppConfig.String("rocketmq_consume_topics")
	if topicsStr == "" {
		topicsStr, _ = beego.AppConfig.String("rocketmq_producer_topics")
	}
	if topicsStr == "" {
		logger.Warn("[mq] consumer not started: empty topics")
		return c, false
	}
	c.ak, _ = beego.AppConfig.String("rocketmq_access_key")
	c.sk, _ = beego.AppConfig.String("rocketmq_secret_key")
	if strings.TrimSpace(c.ak) == "" || strings.TrimSpace(c.sk) == "" {
		logger.Warn("[mq] consumer not started: missing access/secret key")
		return c, false
	}

	c.subs = map[string]*rmq.FilterExpression{}
	for _, t := range strings.Split(topicsStr, ",") {
		t = strings.TrimSpace(strings.ReplaceAll(t, ".", "_"))
		if t != "" {
			c.subs[t] = rmq.SUB_ALL
		}
	}
	return c, len(c.subs) > 0
}

// StartInboxConsumer 启动 RocketMQ v5 SimpleConsumer，消息按 (message_id, topic) 去重落 inbox 表
// 下游（对账/风控）从 inbox 表消费，MQ 丢投递不丢数据
func StartInboxConsumer(ctx context.Context, wg *sync.WaitGroup) {
	rmq.ResetLogger()

	conf, ok := readConsumerConf()
	if !ok {
		return
	}

	cfg := &rmq.Config{Endpoint: conf.endpoint, ConsumerGroup: conf.group}
	cfg.Credentials = &credentials.SessionCredentials{AccessKey: conf.ak, AccessSecret: conf.sk}

	// 容器刚起时 broker 可能未就绪，带重试启动
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ {
		sc, err = rmq.NewSimpleConsumer(cfg,
			rmq.WithAwaitDuration(5*time.Second),
			rmq.WithSubscriptionExpressions(conf.subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] simple consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start simple consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] inbox consumer started", zap.String("group", conf.group))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				mvs, err := sc.Receive(ctx, 16, 20*time.Second)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("[mq] receive error", zap.Error(err))
					continue
				}
				for _, mv := range mvs {
					consumeOne(ctx, sc, mv)
				}
			}
		}
	}()
}

func consumeOne(ctx context.Context, sc rmq.SimpleConsumer, mv *rmq.MessageView) {
	id := mv.GetMessageId()
	topic := mv.GetTopic()
	body := mv.GetBody()

	if err := model.UpsertInbox(ctx, infmysql.SQLX(), id, topic, string(body), time.Now().UnixMilli()); err != nil {
		logger.Warn("[mq] upsert inbox failed",
			zap.String("id", id), zap.String("topic", topic), zap.Error(err))
		return // 不 Ack，等重投
	}

	// 结算事件打一条回执日志，方便对账排查
	if topic == model.TopicRoundSettled {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			roundNo, _ := payload["round_no"].(float64)
			winning, _ := payload["winning_value"].(float64)
			logger.Info("[mq] settlement event received",
				zap.Int64("round_no", int64(roundNo)), zap.Int("winning_value", int(winning)))
		}
	}

	if err := sc.Ack(ctx, mv); err != nil {
		logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
	}
}

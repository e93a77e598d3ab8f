package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	"github.com/rahul3988/cp-win5-sub001/internal/service"

	"go.uber.org/zap"
)

// StartCashbackJob 启动每日返水任务
// 每天在配置的小时触发一次；启动时若当天任务尚未跑过会先补跑一轮
// 发放本身按 (user, source_day, day_offset) 幂等，多跑无副作用
func StartCashbackJob(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	svc := service.NewCashbackService()

	go func() {
		defer wg.Done()

		// 启动补跑：进程可能错过了当天的触发点
		runOnce(ctx, svc)

		for {
			next := nextRunAt(time.Now(), config.Get().Game.CashbackHour)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				runOnce(ctx, svc)
			}
		}
	}()
}

func runOnce(ctx context.Context, svc service.CashbackService) {
	c, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := svc.RunDaily(c, time.Now()); err != nil {
		logger.Error("cashback job run failed", zap.Error(err))
	}
}

// nextRunAt 计算下一个触发时刻（今天或明天的 hour 点整）
func nextRunAt(now time.Time, hour int) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.Add(24 * time.Hour)
	}
	return at
}

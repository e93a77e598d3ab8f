package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common"
	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/service"
	"github.com/rahul3988/cp-win5-sub001/internal/worker"
	_ "github.com/rahul3988/cp-win5-sub001/routers"

	beego "github.com/beego/beego/v2/server/web"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger.InitLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 加载配置（Nacos 优先，本地文件兜底）
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatalf("load config failed", zap.Error(err))
	}
	config.Set(cfg)

	// 配置热更新：仅刷新全局配置，连接类资源不随动
	if err := config.StartWatch(ctx, func(oldCfg, newCfg *config.Config) {
		logger.Info("config reloaded")
	}); err != nil {
		logger.Warn("config watch not started", zap.Error(err))
	}

	// 2. 初始化 MySQL（模型层经由 infra/mysql 取句柄）
	db := common.InitDB(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	infmysql.UseDB(db.DB)
	fmt.Printf("[Main] MySQL 已连接: max_open=%d\n", cfg.Database.MaxOpenConns)

	// 3. 初始化 Redis（可选，未配置时降级为纯 DB 路径）
	infrds.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if infrds.Client() != nil {
		if err := infrds.Ping(ctx, 3*time.Second); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
	}

	// 4. Prometheus 指标端口（独立于业务端口）
	if cfg.Observability.EnableProm {
		promAddr := cfg.Observability.PromAddr
		if promAddr == "" {
			promAddr = ":9091"
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			fmt.Printf("[Main] Prometheus 指标监听: %s\n", promAddr)
			if err := http.ListenAndServe(promAddr, mux); err != nil {
				logger.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	// 5. 启动回合引擎（自动开局计时）
	engine := service.NewEngine()
	service.SetDefault(engine)
	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("start round engine failed", zap.Error(err))
	}

	// 6. 后台任务：outbox 投递、inbox 消费、返水日结
	var wg sync.WaitGroup
	worker.StartOutboxDispatcher(ctx, &wg)
	worker.StartInboxConsumer(ctx, &wg)
	worker.StartCashbackJob(ctx, &wg)

	// 7. 启动 HTTP 服务
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	beego.BConfig.CopyRequestBody = true
	go func() {
		fmt.Printf("[Main] HTTP 服务启动: :%d\n", port)
		beego.Run(fmt.Sprintf(":%d", port))
	}()

	// 8. 等待退出信号，优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	fmt.Printf("[Main] 收到退出信号: %v\n", sig)

	engine.StopTimeline()
	config.StopWatch()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("graceful shutdown timed out")
	}
	fmt.Println("[Main] 已退出")
}

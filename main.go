package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"team-presence/auth"
	"team-presence/config"
	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/services"
	"team-presence/web"
)

func main() {
	log.Println("Starting team presence service...")

	// 加载配置
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	common.SetLevel(common.ParseLevel(cfg.LogLevel))
	logger := common.NewLogger("Main")

	// 连接数据库
	db, err := database.Connect(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 运行数据库迁移
	if err := database.Migrate(db); err != nil {
		db.Close()
		log.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database connected and migrated")

	pool := database.NewPool(db, cfg.DBAcquireTimeout)

	// 仓库
	matches := services.NewMatchStore(pool, common.NewLogger("MatchStore"))
	presences := services.NewPresenceStore(pool, common.NewLogger("Presence"))
	users := services.NewUserStore(pool, common.NewLogger("UserStore"))

	// 创建WebSocket Hub
	wsHub := web.NewHub(common.NewLogger("WebSocket"))
	go wsHub.Run()

	// 健康检查
	health := web.NewHealthChecker(common.NewLogger("Health"))
	health.RegisterCheck("database", web.PingCheck("database", pool.Ping))

	events := buildPublishers(cfg, wsHub, health, logger)

	server := web.NewServer(cfg, web.Deps{
		Matches:   matches,
		Presences: presences,
		Users:     users,
		Tokens:    auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn),
		Events:    events,
		Health:    health,
		Hub:       wsHub,
		Logger:    common.NewLogger("HTTP"),
	})

	// 开赛后自动关闭出勤窗口
	var sweeper *services.WindowSweeper
	if cfg.WindowSweepInterval > 0 {
		sweeper = services.NewWindowSweeper(matches, events, cfg.WindowSweepInterval, common.NewLogger("WindowSweeper"))
		sweeper.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Received %s, shutting down...", sig)
	case err := <-serverErr:
		logger.Error("Web server error: %v", err)
	}

	// 关闭顺序: HTTP -> 定时任务 -> 事件发布 -> 数据库
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := events.Close(); err != nil {
		logger.Warn("Closing publishers: %v", err)
	}
	if err := pool.Close(); err != nil {
		logger.Warn("Closing database: %v", err)
	}

	logger.Info("Service stopped")
}

// buildPublishers 按配置组装事件发布器, 未配置的跳过, 连接失败只告警
func buildPublishers(cfg *config.Config, hub *web.Hub, health *web.HealthChecker, logger common.Logger) *services.MultiPublisher {
	publishers := []services.EventPublisher{hub}

	if cfg.AMQPURL != "" {
		p, err := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, common.NewLogger("AMQP"))
		if err != nil {
			logger.Warn("AMQP publisher disabled: %v", err)
		} else {
			publishers = append(publishers, p)
			health.RegisterCheck("amqp", web.PingCheck("amqp", p.Ping))
			logger.Info("AMQP publisher enabled (exchange %s)", cfg.AMQPExchange)
		}
	}

	if cfg.MQTTBroker != "" {
		p, err := services.NewMQTTPublisher(services.MQTTOptions{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, common.NewLogger("MQTT"))
		if err != nil {
			logger.Warn("MQTT publisher disabled: %v", err)
		} else {
			publishers = append(publishers, p)
			health.RegisterCheck("mqtt", web.PingCheck("mqtt", p.Ping))
			logger.Info("MQTT publisher enabled (broker %s)", cfg.MQTTBroker)
		}
	}

	if cfg.NotifyWebhook != "" {
		publishers = append(publishers, services.NewTeamNotifier(cfg.NotifyWebhook, cfg.PublicURL, common.NewLogger("Notifier")))
		logger.Info("Team chat notifications enabled")
	}

	return services.NewMultiPublisher(publishers...)
}

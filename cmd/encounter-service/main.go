package main

import (
	"context"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"lingap/internal/pkg/bootstrap"
	"lingap/internal/pkg/config"
	"lingap/internal/pkg/constants"
	"lingap/internal/pkg/httpclient"
	"lingap/internal/pkg/logger"
	"lingap/internal/pkg/mq"
	redispkg "lingap/internal/pkg/redis"
	"lingap/internal/pkg/zookeeper"
	"lingap/internal/service/encounter/application"
	"lingap/internal/service/encounter/infrastructure/adapter"
	"lingap/internal/service/encounter/interfaces"
	invapp "lingap/internal/service/inventory/application"
	invport "lingap/internal/service/inventory/domain/port"
	invadapter "lingap/internal/service/inventory/infrastructure/adapter"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	var (
		kafkaWriter *kafka.Writer
		redisClient *redispkg.Client
		zkConn      *zookeeper.Conn
		closeDB     func() error
	)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(cfg.Service.Name)
			httpClient := httpclient.NewClient(tracer, appCtx.Nacos, cfg.Workflow.RemoteCallTimeout)

			// 库存扣减锁，按部署环境选择策略
			var locker invport.ItemLocker
			switch cfg.Workflow.LockStrategy {
			case "redis":
				redisClient = redispkg.NewClient(cfg.Infra.Redis.Addr)
				redisLocker, err := invadapter.NewRedisItemLocker(redisClient, 10*time.Second)
				if err != nil {
					logger.L().Fatal().Err(err).Msg("failed to initialize redis stock locker")
				}
				locker = redisLocker
			case "zookeeper":
				conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
				if err != nil {
					logger.L().Fatal().Err(err).Msg("failed to connect to zookeeper")
				}
				zkConn = conn
				locker = invadapter.NewZkItemLocker(conn, 30*time.Second)
			default:
				logger.L().Warn().Str("strategy", cfg.Workflow.LockStrategy).
					Msg("using in-process stock lock, not safe for multi-instance deployments")
				locker = invadapter.NewLocalItemLocker()
			}

			kafkaWriter = mq.NewWriter(cfg.Infra.Kafka.Brokers, constants.ReviewQueueTopic)

			ledger := invapp.NewLedgerService(
				invadapter.NewStockStoreHTTPAdapter(httpClient),
				locker,
				invadapter.NewDivergenceKafkaAdapter(kafkaWriter),
				tracer,
			)

			db, err := adapter.OpenMysql(cfg.Infra.Mysql.DSN)
			if err != nil {
				logger.L().Fatal().Err(err).Msg("failed to open mysql")
			}
			if sqlDB, err := db.DB(); err == nil {
				closeDB = sqlDB.Close
			}

			rules, err := adapter.NewCelRuleEngine()
			if err != nil {
				logger.L().Fatal().Err(err).Msg("failed to initialize rule engine")
			}

			app := application.NewEncounterApplicationService(application.ServiceOptions{
				Repo:              adapter.NewGormSubmissionRepository(db),
				Clinical:          adapter.NewClinicalHTTPAdapter(httpClient),
				Ledger:            ledger,
				Calculator:        adapter.NewNutritionHTTPAdapter(httpClient),
				Rules:             rules,
				Notifier:          adapter.NewReviewKafkaAdapter(kafkaWriter),
				Tracer:            tracer,
				ProcessingTimeout: cfg.Workflow.ProcessingTimeout,
				DispenseWorkers:   cfg.Workflow.DispenseWorkers,
				EdemaRule:         cfg.Workflow.EdemaRule,
			})

			// 上次进程崩溃留下的未完成提交在启动后异步补偿掉，
			// 不阻塞服务接流量；补偿本身是幂等的，和新提交互不相扰
			go func() {
				recoverCtx, cancel := context.WithTimeout(context.Background(), cfg.Workflow.ProcessingTimeout)
				defer cancel()
				if err := app.RecoverPending(recoverCtx); err != nil {
					logger.L().Error().Err(err).Msg("failed to recover pending submissions")
				}
			}()

			interfaces.NewHTTPHandler(app, tracer).RegisterRoutes(appCtx.Mux)
		},
		Shutdown: func(ctx context.Context) {
			if kafkaWriter != nil {
				if err := kafkaWriter.Close(); err != nil {
					logger.L().Error().Err(err).Msg("error closing kafka writer")
				}
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.L().Error().Err(err).Msg("error closing redis client")
				}
			}
			if zkConn != nil {
				zkConn.Close()
			}
			if closeDB != nil {
				if err := closeDB(); err != nil {
					logger.L().Error().Err(err).Msg("error closing mysql connection")
				}
			}
		},
	})
}

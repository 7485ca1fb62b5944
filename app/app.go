// Package app wires the dependencies shared by the API server and the queue worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"product-importer/config"
	"product-importer/database"
	"product-importer/dispatch"
	"product-importer/logger"
	"product-importer/models"
	aws_pkg "product-importer/pkg/aws"
	"product-importer/progress"
	"product-importer/repository"
	"product-importer/sender"
	"product-importer/services"
	"product-importer/staging"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds everything both processes build at startup.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Store   progress.Store
	Stager  staging.Stager
	Broker  dispatch.Broker
	Metrics *aws_pkg.MetricsClient

	ProductRepo repository.ProductRepository
	Webhooks    services.WebhookService
	Importer    *services.ImportService
	Handler     *dispatch.Handler

	awsCfg *sdkaws.Config
}

// InitLogger installs the global logger, tee'd to CloudWatch Logs when enabled.
func InitLogger(ctx context.Context, cfg *config.Config, serviceName string) (*zap.Logger, error) {
	if !cfg.CloudWatchEnabled {
		return logger.Initialize(cfg.AppEnv)
	}
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		return logger.Initialize(cfg.AppEnv)
	}
	cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName)
	if err != nil {
		log, initErr := logger.Initialize(cfg.AppEnv)
		if initErr == nil {
			log.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(err))
		}
		return log, initErr
	}
	return logger.InitializeWithWriter(cfg.AppEnv, cw)
}

// Bootstrap connects Postgres and Redis, loads AWS clients and builds the services that
// run imports and deliver webhooks.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	db, err := database.ConnectPostgres(cfg.PostgresDSN(), log, &models.Product{}, &models.Webhook{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.DB = db

	c.Store = progress.NewMemoryStore(cfg.ProgressTTL)
	if client, err := database.NewRedisClient(cfg.RedisURL); err != nil {
		log.Warn("Redis URL invalid, using in-memory progress", zap.Error(err))
	} else if err := database.ProbeRedis(ctx, client); err != nil {
		log.Warn("Redis unreachable, using in-memory progress", zap.Error(err))
		_ = client.Close()
	} else {
		c.Redis = client
		c.Store = progress.NewRedisStore(client, cfg.ProgressTTL)
	}
	log.Info("progress store selected", zap.String("backend", c.Store.Backend()))

	var snsClient aws_pkg.SNSPublisher
	if awsCfg, err := aws_pkg.LoadAWSConfig(ctx); err != nil {
		log.Warn("AWS config unavailable, SNS, S3 and metrics disabled", zap.Error(err))
	} else {
		c.awsCfg = &awsCfg
		c.Metrics = aws_pkg.NewMetricsClient(awsCfg)
		if cfg.EventsSNSTopicARN != "" {
			snsClient = aws_pkg.NewSNSClient(awsCfg)
		}
	}

	if c.Stager, err = c.buildStager(); err != nil {
		return nil, err
	}
	c.Broker = c.buildBroker(ctx)

	c.ProductRepo = repository.NewGormProductRepository(db)
	webhookRepo := repository.NewGormWebhookRepository(db)

	c.Webhooks = services.NewWebhookService(
		webhookRepo,
		sender.NewHTTPSender(cfg.WebhookTimeout),
		snsClient,
		cfg.EventsSNSTopicARN,
		c.Metrics,
		log,
	)
	c.Importer = services.NewImportService(c.ProductRepo, c.Store, cfg.ImportChunkSize, c.Metrics, log)
	c.Handler = dispatch.NewHandler(c.Importer, c.Webhooks, c.Store, log)
	return c, nil
}

func (c *Container) buildStager() (staging.Stager, error) {
	if c.Config.StagingS3Bucket != "" && c.awsCfg != nil {
		store := aws_pkg.NewS3Store(aws_pkg.NewS3Client(*c.awsCfg), c.Config.StagingS3Bucket)
		c.Logger.Info("staging uploads in S3", zap.String("bucket", c.Config.StagingS3Bucket))
		return staging.NewS3Stager(store, c.Config.StagingS3Prefix), nil
	}
	if c.Config.StagingS3Bucket != "" {
		c.Logger.Warn("STAGING_S3_BUCKET set but AWS config unavailable, staging uploads on local disk",
			zap.String("bucket", c.Config.StagingS3Bucket))
	}
	if c.Config.QueueBroker == config.BrokerSQS {
		c.Logger.Warn("QUEUE_BROKER=sqs with local staging: workers on other hosts cannot read uploads, set STAGING_S3_BUCKET",
			zap.String("dir", c.Config.BulkStorageDir))
	}
	stager, err := staging.NewDirStager(c.Config.BulkStorageDir)
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return stager, nil
}

// buildBroker returns the configured broker without probing it, or nil when none can be
// built. Queue mode needs progress shared through Redis, so no broker is built while the
// store is process-local.
func (c *Container) buildBroker(ctx context.Context) dispatch.Broker {
	if c.Config.QueueBroker == config.BrokerNone {
		return nil
	}
	if c.Redis == nil {
		c.Logger.Warn("progress store is process-local, durable queue disabled",
			zap.String("queue_broker", c.Config.QueueBroker))
		return nil
	}

	switch c.Config.QueueBroker {
	case config.BrokerRedis:
		return dispatch.NewRedisBroker(c.Redis, c.Config.ImportQueueName)
	case config.BrokerSQS:
		if c.awsCfg == nil {
			return nil
		}
		url := c.Config.SQSQueueURL
		if url == "" {
			var err error
			url, err = aws_pkg.GetQueueURL(ctx, *c.awsCfg, c.Config.ImportQueueName)
			if err != nil {
				c.Logger.Warn("SQS queue URL lookup failed", zap.Error(err))
				return nil
			}
		}
		return dispatch.NewSQSBroker(aws_pkg.NewSQSQueue(*c.awsCfg, url), c.Config.ImportQueueName)
	default:
		return nil
	}
}

// RequireSharedProgress fails unless progress is kept in Redis, where the API reads it.
func (c *Container) RequireSharedProgress() error {
	if c.Redis == nil {
		return errors.New("worker needs a reachable Redis (REDIS_URL) for shared progress")
	}
	return nil
}

// PingDB reports database reachability for the health endpoint.
func (c *Container) PingDB() error {
	return database.Ping(c.DB)
}

// Close releases the database and Redis connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Error closing Redis", zap.Error(err))
		}
	}
	if err := database.Close(c.DB); err != nil {
		c.Logger.Warn("Error closing database", zap.Error(err))
	}
}

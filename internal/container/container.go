package container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/config"
	"github.com/oksasatya/pixsearch-identity/internal/application"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/cache"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/objectstore"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/postgres"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/search"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/sqlite"
	"github.com/oksasatya/pixsearch-identity/internal/metrics"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/mailer"
	mailtpl "github.com/oksasatya/pixsearch-identity/pkg/mailer/templates"
)

// Container holds the constructed components shared by the router and the
// background jobs. Optional collaborators are nil when not configured.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	Store repository.Store
	Ping  func(ctx context.Context) error

	Redis     *redis.Client
	GCS       *storage.Client
	ES        *elasticsearch.Client
	RabbitPub *helpers.RabbitPublisher

	JWT      *helpers.JWTManager
	Hasher   *helpers.Hasher
	Notifier mailer.Notifier

	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Auth  *application.AuthService
	Users *application.UserService

	closers []func()
}

// Build opens the store, connects the configured collaborators and wires the services.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	if err := c.openStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.connectOptional(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.wire(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// New wires the services over an already opened store and the given notifier,
// without optional collaborators.
func New(cfg *config.Config, logger *logrus.Logger, store repository.Store, notifier mailer.Notifier) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Store: store, Notifier: notifier}
	if err := c.wire(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.DBDriver {
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		c.Store = st
		c.Ping = func(ctx context.Context) error { return st.DB().PingContext(ctx) }
		c.closers = append(c.closers, func() { _ = st.Close() })
		c.Logger.WithField("path", cfg.SQLitePath).Info("sqlite store ready")
	case "postgres", "":
		dsn := cfg.PostgresDSN()
		if err := postgres.RunMigrations(dsn, c.Logger); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLife,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		c.Store = postgres.NewStore(pool)
		c.Ping = pool.Ping
		c.closers = append(c.closers, pool.Close)
		c.Logger.WithField("host", cfg.DBHost).Info("postgres store ready")
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	return nil
}

// connectOptional sets up Redis, GCS, Elasticsearch and RabbitMQ. Redis, GCS
// and Elasticsearch degrade to disabled on failure; the queue is required only
// when it is the mail transport.
func (c *Container) connectOptional(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisAddr != "" {
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			helpers.LogWarn(c.Logger, "redis unavailable, resend cooldown disabled", err, nil)
		} else {
			c.Redis = rdb
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}
	if cfg.GCSBucket != "" {
		gcs, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSON)
		if err != nil {
			helpers.LogWarn(c.Logger, "gcs unavailable, image upload disabled", err, nil)
		} else {
			c.GCS = gcs
			c.closers = append(c.closers, func() { _ = gcs.Close() })
		}
	}
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(ctx, addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			helpers.LogWarn(c.Logger, "elasticsearch unavailable, user search uses the store", err, nil)
		} else {
			c.ES = es
		}
	}
	if cfg.MailSendEnabled && cfg.MailTransport == "queue" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		c.RabbitPub = pub
		c.closers = append(c.closers, pub.Close)
	}
	return nil
}

func (c *Container) notifier() (mailer.Notifier, error) {
	cfg := c.Config
	if !cfg.MailSendEnabled {
		return mailer.NewLogNotifier(c.Logger, false), nil
	}
	switch cfg.MailTransport {
	case "queue":
		if c.RabbitPub == nil {
			return nil, errors.New("mail transport queue needs a rabbitmq publisher")
		}
		return mailer.NewQueueNotifier(c.RabbitPub), nil
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
			return nil, errors.New("mail transport mailgun needs MAILGUN_DOMAIN and MAILGUN_API_KEY")
		}
		mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		if cfg.MailgunAPIBase != "" {
			mg = mg.WithAPIBase(cfg.MailgunAPIBase)
		}
		return mailer.NewDirectNotifier(mg), nil
	case "log", "":
		return mailer.NewLogNotifier(c.Logger, cfg.IsDevelopment()), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.MailTransport)
	}
}

func (c *Container) wire() error {
	cfg := c.Config
	jwt, err := helpers.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL, cfg.AppName)
	if err != nil {
		return fmt.Errorf("session tokens: %w", err)
	}
	c.JWT = jwt
	c.Hasher = helpers.NewHasher(cfg.BcryptCost)

	if c.Notifier == nil {
		n, err := c.notifier()
		if err != nil {
			return err
		}
		c.Notifier = n
	}

	c.Registry = metrics.NewRegistry()
	c.Metrics = metrics.NewCollector(c.Registry)

	c.Auth, c.Users = c.services()
	return nil
}

func (c *Container) services() (*application.AuthService, *application.UserService) {
	cfg := c.Config
	var (
		index  application.UserIndex
		images application.ImageStore
	)
	opts := []application.AuthOption{
		application.WithLogger(c.Logger),
		application.WithRecorder(c.Metrics),
		application.WithTokenTTLs(cfg.VerifyTokenTTL, cfg.ResetTokenTTL),
		application.WithTimeouts(cfg.StoreTimeout, cfg.NotifyTimeout),
		application.WithBranding(mailtpl.Branding{
			AppName:        cfg.AppName,
			CompanyName:    cfg.CompanyName,
			CompanyAddress: cfg.CompanyAddress,
			LogoURL:        cfg.LogoURL,
			SupportURL:     cfg.SupportURL,
		}),
	}
	if c.Redis != nil {
		opts = append(opts, application.WithCooldown(cache.NewCooldown(c.Redis, strings.ToLower(cfg.AppName)+":"), cfg.ResendCooldown))
	}
	if c.ES != nil {
		index = search.NewUserIndex(c.ES, cfg.ESUsersIndex)
		opts = append(opts, application.WithUserIndex(index))
	}
	if c.GCS != nil {
		images = objectstore.NewGCSImageStore(c.GCS, cfg.GCSBucket)
		opts = append(opts, application.WithImageStore(images))
	}

	auth := application.NewAuthService(c.Store, c.Hasher, c.JWT, c.Notifier, cfg.BaseURL, opts...)
	users := application.NewUserService(c.Store, index, images, c.Logger, cfg.StoreTimeout)
	return auth, users
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

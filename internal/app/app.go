package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/blobstore"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/domain"
	channelRedis "github.com/sharetube/watchparty/internal/repository/channel/redis"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/sharetube/watchparty/internal/sweeper"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Secret         string        `json:"-"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	LogLevel       string        `json:"log_level"`
	MembersLimit   int           `json:"members_limit"`
	ChannelTTL     time.Duration `json:"channel_ttl"`
	Retention      time.Duration `json:"retention"`
	SweepInterval  time.Duration `json:"sweep_interval"`
	SweepBatchSize int           `json:"sweep_batch_size"`
	HistoryLimit   int           `json:"history_limit"`
	MaxUploadSize  int64         `json:"max_upload_size"`
	RedisHost      string        `json:"redis_host"`
	RedisPort      int           `json:"redis_port"`
	RedisPassword  string        `json:"-"`
	S3Endpoint     string        `json:"s3_endpoint"`
	S3Region       string        `json:"s3_region"`
	S3Bucket       string        `json:"s3_bucket"`
	S3AccessKey    string        `json:"-"`
	S3SecretKey    string        `json:"-"`
	S3UseSSL       bool          `json:"s3_use_ssl"`
	S3PublicURL    string        `json:"s3_public_url"`
}

func (cfg *AppConfig) Validate() error {
	var errs []error
	if cfg.Secret == "" {
		errs = append(errs, errors.New("secret must not be empty"))
	}
	if cfg.MembersLimit < 1 {
		errs = append(errs, errors.New("members limit must be greater than 0"))
	}
	if cfg.HistoryLimit < 1 {
		errs = append(errs, errors.New("history limit must be greater than 0"))
	}
	if cfg.ChannelTTL <= 0 {
		errs = append(errs, errors.New("channel ttl must be positive"))
	}
	if cfg.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if cfg.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval must not be negative"))
	}
	if cfg.SweepBatchSize < 1 {
		errs = append(errs, errors.New("sweep batch size must be greater than 0"))
	}
	if cfg.MaxUploadSize < 1 {
		errs = append(errs, errors.New("max upload size must be greater than 0"))
	}
	if cfg.S3Endpoint != "" && cfg.S3Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required when s3 endpoint is set"))
	}

	return errors.Join(errs...)
}

// NewLogger builds the JSON logger that also writes attributes carried by
// the context.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type App struct {
	cfg     *AppConfig
	logger  *slog.Logger
	rc      *redis.Client
	handler http.Handler
	sweeper interface{ Run(context.Context) error }
}

// New connects to redis (and the object store when configured) and wires
// the components. Close releases the connections.
func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	// an attachment store is optional, the interface stays nil without one
	var blobStore interface {
		Upload(ctx context.Context, channelID string, r io.Reader, size int64) (domain.Attachment, error)
	}
	if cfg.S3Endpoint != "" {
		store, err := blobstore.New(ctx, &blobstore.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to create blob store: %w", err)
		}
		blobStore = store
	} else {
		logger.InfoContext(ctx, "attachments disabled, no s3 endpoint configured")
	}

	// keys outlive the channel by the retention window so that history stays
	// readable until the sweeper catches up
	channelRepo := channelRedis.NewRepo(rc, logger, cfg.ChannelTTL+cfg.Retention)
	connRepo := inmemory.NewRepo(logger)
	channelService := channel.NewService(channelRepo, connRepo, logger, &channel.Config{
		Secret:       cfg.Secret,
		MembersLimit: cfg.MembersLimit,
		ChannelTTL:   cfg.ChannelTTL,
		Retention:    cfg.Retention,
		HistoryLimit: cfg.HistoryLimit,
	})
	ctrl := controller.NewController(channelService, blobStore, logger, &controller.Config{
		MaxUploadSize: cfg.MaxUploadSize,
	})

	return &App{
		cfg:     cfg,
		logger:  logger,
		rc:      rc,
		handler: ctrl.GetMux(),
		sweeper: sweeper.New(channelRepo, logger, &sweeper.Config{
			Retention: cfg.Retention,
			Interval:  cfg.SweepInterval,
			BatchSize: cfg.SweepBatchSize,
		}),
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and runs the sweeper until ctx is done, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port)),
		Handler: a.handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		a.logger.InfoContext(shutdownCtx, "shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Close() error {
	return a.rc.Close()
}

// Run builds the app from cfg and runs it until ctx is done.
func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

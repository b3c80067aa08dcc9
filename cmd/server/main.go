package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:  "SERVER_SECRET",
		flagKey: "secret",
		usage:   "Server secret used to sign member tokens",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 20,
		usage:        "Maximum number of members in a channel",
	}
	channelTTL = configVar[time.Duration]{
		envKey:       "SERVER_CHANNEL_TTL",
		flagKey:      "channel-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Channel lifetime, extended by every join",
	}
	retention = configVar[time.Duration]{
		envKey:       "SERVER_RETENTION",
		flagKey:      "retention",
		defaultValue: 24 * time.Hour,
		usage:        "How long messages and attachments are kept",
	}
	sweepInterval = configVar[time.Duration]{
		envKey:       "SERVER_SWEEP_INTERVAL",
		flagKey:      "sweep-interval",
		defaultValue: time.Hour,
		usage:        "Interval between retention sweeps, 0 sweeps once at startup",
	}
	sweepBatchSize = configVar[int]{
		envKey:       "SERVER_SWEEP_BATCH_SIZE",
		flagKey:      "sweep-batch-size",
		defaultValue: 500,
		usage:        "Maximum number of messages removed per channel per step",
	}
	historyLimit = configVar[int]{
		envKey:       "SERVER_HISTORY_LIMIT",
		flagKey:      "history-limit",
		defaultValue: 100,
		usage:        "Number of past messages replayed to a new subscriber",
	}
	maxUploadSize = configVar[int64]{
		envKey:       "SERVER_MAX_UPLOAD_SIZE",
		flagKey:      "max-upload-size",
		defaultValue: 25 << 20,
		usage:        "Maximum attachment size in bytes",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	s3Endpoint = configVar[string]{
		envKey:  "S3_ENDPOINT",
		flagKey: "s3-endpoint",
		usage:   "Object storage endpoint, attachments are disabled when empty",
	}
	s3Region = configVar[string]{
		envKey:  "S3_REGION",
		flagKey: "s3-region",
		usage:   "Object storage region",
	}
	s3Bucket = configVar[string]{
		envKey:       "S3_BUCKET",
		flagKey:      "s3-bucket",
		defaultValue: "watchparty",
		usage:        "Attachment bucket",
	}
	s3AccessKey = configVar[string]{
		envKey:  "S3_ACCESS_KEY",
		flagKey: "s3-access-key",
		usage:   "Object storage access key",
	}
	s3SecretKey = configVar[string]{
		envKey:  "S3_SECRET_KEY",
		flagKey: "s3-secret-key",
		usage:   "Object storage secret key",
	}
	s3UseSSL = configVar[bool]{
		envKey:  "S3_USE_SSL",
		flagKey: "s3-use-ssl",
		usage:   "Use TLS for object storage",
	}
	s3PublicURL = configVar[string]{
		envKey:  "S3_PUBLIC_URL",
		flagKey: "s3-public-url",
		usage:   "Public base URL for attachment links",
	}
)

// bind registers v as a flag, an environment variable and a default.
func bind[T any](v configVar[T], define func(name string, value T, usage string) *T) {
	define(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	bind(secret, pflag.String)
	bind(port, pflag.Int)
	bind(host, pflag.String)
	bind(logLevel, pflag.String)
	bind(membersLimit, pflag.Int)
	bind(channelTTL, pflag.Duration)
	bind(retention, pflag.Duration)
	bind(sweepInterval, pflag.Duration)
	bind(sweepBatchSize, pflag.Int)
	bind(historyLimit, pflag.Int)
	bind(maxUploadSize, pflag.Int64)
	bind(redisPort, pflag.Int)
	bind(redisHost, pflag.String)
	bind(redisPassword, pflag.String)
	bind(s3Endpoint, pflag.String)
	bind(s3Region, pflag.String)
	bind(s3Bucket, pflag.String)
	bind(s3AccessKey, pflag.String)
	bind(s3SecretKey, pflag.String)
	bind(s3UseSSL, pflag.Bool)
	bind(s3PublicURL, pflag.String)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &app.AppConfig{
		Secret:         viper.GetString(secret.flagKey),
		Host:           viper.GetString(host.flagKey),
		Port:           viper.GetInt(port.flagKey),
		LogLevel:       viper.GetString(logLevel.flagKey),
		MembersLimit:   viper.GetInt(membersLimit.flagKey),
		ChannelTTL:     viper.GetDuration(channelTTL.flagKey),
		Retention:      viper.GetDuration(retention.flagKey),
		SweepInterval:  viper.GetDuration(sweepInterval.flagKey),
		SweepBatchSize: viper.GetInt(sweepBatchSize.flagKey),
		HistoryLimit:   viper.GetInt(historyLimit.flagKey),
		MaxUploadSize:  viper.GetInt64(maxUploadSize.flagKey),
		RedisHost:      viper.GetString(redisHost.flagKey),
		RedisPort:      viper.GetInt(redisPort.flagKey),
		RedisPassword:  viper.GetString(redisPassword.flagKey),
		S3Endpoint:     viper.GetString(s3Endpoint.flagKey),
		S3Region:       viper.GetString(s3Region.flagKey),
		S3Bucket:       viper.GetString(s3Bucket.flagKey),
		S3AccessKey:    viper.GetString(s3AccessKey.flagKey),
		S3SecretKey:    viper.GetString(s3SecretKey.flagKey),
		S3UseSSL:       viper.GetBool(s3UseSSL.flagKey),
		S3PublicURL:    viper.GetString(s3PublicURL.flagKey),
	}
}

func main() {
	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, appConfig); err != nil {
		stop()
		log.Fatal(err)
	}
}

package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Blog     BlogConfig     `mapstructure:"blog"`
	Ping     PingConfig     `mapstructure:"ping"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Files    FilesConfig    `mapstructure:"files"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	PublicBaseURL   string `mapstructure:"public_base_url"` // e.g. a CDN in front of the bucket
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig protects the HTTP API.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// BlogConfig describes the remote blog posts are published to.
type BlogConfig struct {
	ID             string        `mapstructure:"id"`
	Name           string        `mapstructure:"name"`
	APIURL         string        `mapstructure:"api_url"`
	HomepageURL    string        `mapstructure:"homepage_url"`
	APITokenSecret string        `mapstructure:"api_token_secret"`
	SupportsSync   bool          `mapstructure:"supports_sync"`
	UploadPrefix   string        `mapstructure:"upload_prefix"`
	LightboxImages bool          `mapstructure:"lightbox_images"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type PingConfig struct {
	URLs        []string      `mapstructure:"urls"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type UploadConfig struct {
	MaxRetries           uint64        `mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// FilesConfig is where attached supporting files are kept on local disk.
type FilesConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// SlogLevel parses Level, falling back to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A .env next to the binary is optional
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "2m") // publishes upload files synchronously
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "blog_publisher")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.public_base_url", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("blog.id", "")
	v.SetDefault("blog.name", "")
	v.SetDefault("blog.api_url", "")
	v.SetDefault("blog.homepage_url", "")
	v.SetDefault("blog.api_token_secret", "")
	v.SetDefault("blog.supports_sync", true)
	v.SetDefault("blog.upload_prefix", "media")
	v.SetDefault("blog.lightbox_images", false)
	v.SetDefault("blog.request_timeout", "30s")
	v.SetDefault("ping.urls", []string{})
	v.SetDefault("ping.timeout", "10s")
	v.SetDefault("ping.concurrency", 4)
	v.SetDefault("upload.max_retries", 3)
	v.SetDefault("upload.retry_initial_interval", "200ms")
	v.SetDefault("files.dir", "./data/files")
	v.SetDefault("files.max_bytes", 32<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, errors.New(key+" is required"))
		}
	}
	require(c.Database.URI, "database.uri")
	require(c.S3.BucketName, "s3.bucket_name")
	require(c.JWT.Secret, "jwt.secret")
	require(c.Blog.ID, "blog.id")
	require(c.Blog.APIURL, "blog.api_url")
	require(c.Blog.APITokenSecret, "blog.api_token_secret")
	require(c.Files.Dir, "files.dir")
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, errors.New("log.format must be text or json"))
	}
	return errors.Join(errs...)
}

// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/codedpad/pkg/fwlog"
)

const (
	DriverMinio    = "minio"
	DriverS3       = "s3"
	DriverRedis    = "redis"
	DriverDynamoDB = "dynamodb"
)

type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"accessKeyID"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	UseSSL          bool   `mapstructure:"useSSL"`
	UsePathStyle    bool   `mapstructure:"usePathStyle"`
	CreateBucket    bool   `mapstructure:"createBucket"`
}

type MetadataConfig struct {
	Driver   string        `mapstructure:"driver"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Table    string        `mapstructure:"table"`
	Region   string        `mapstructure:"region"`
	Endpoint string        `mapstructure:"endpoint"`
}

type UploadConfig struct {
	MaxSize        int64         `mapstructure:"maxSize"`
	AllowedTypes   []string      `mapstructure:"allowedTypes"`
	UploadExpiry   time.Duration `mapstructure:"uploadExpiry"`
	DownloadExpiry time.Duration `mapstructure:"downloadExpiry"`
}

type Config struct {
	Addr        string   `mapstructure:"addr"`
	CertFile    string   `mapstructure:"certFile"`
	KeyFile     string   `mapstructure:"keyFile"`
	LogLevel    string   `mapstructure:"logLevel"`
	CORSOrigins []string `mapstructure:"corsOrigins"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// Presigned URLs cannot outlive a week.
const maxExpiry = 7 * 24 * time.Hour

// Validate reports the first setting the server cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must be set")
	}
	switch c.Storage.Driver {
	case DriverMinio, DriverS3:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set")
	}
	switch c.Metadata.Driver {
	case DriverRedis:
		if c.Metadata.Addr == "" {
			return errors.New("metadata.addr must be set for the redis driver")
		}
	case DriverDynamoDB:
		if c.Metadata.Table == "" {
			return errors.New("metadata.table must be set for the dynamodb driver")
		}
	default:
		return fmt.Errorf("unknown metadata driver %q", c.Metadata.Driver)
	}
	if c.Metadata.TTL < 0 {
		return errors.New("metadata.ttl must not be negative")
	}
	if c.Upload.MaxSize <= 0 {
		return errors.New("upload.maxSize must be positive")
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return errors.New("upload.allowedTypes must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"upload.uploadExpiry":   c.Upload.UploadExpiry,
		"upload.downloadExpiry": c.Upload.DownloadExpiry,
	} {
		if d < time.Second || d > maxExpiry {
			return fmt.Errorf("%s must be between 1s and %s", name, maxExpiry)
		}
	}
	return nil
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config

	listeners []func(Config)
)

func InitConfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

// OnChange registers fn to run with the new configuration after every
// successful reload.
func OnChange(fn func(Config)) {
	mu.Lock()
	defer mu.Unlock()
	listeners = append(listeners, fn)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:4000")
	v.SetDefault("certFile", "")
	v.SetDefault("keyFile", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("corsOrigins", []string{"*"})

	v.SetDefault("storage.driver", DriverMinio)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "codedpad")
	v.SetDefault("storage.accessKeyID", "")
	v.SetDefault("storage.secretAccessKey", "")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.usePathStyle", true)
	v.SetDefault("storage.createBucket", false)

	v.SetDefault("metadata.driver", DriverRedis)
	v.SetDefault("metadata.addr", "localhost:6379")
	v.SetDefault("metadata.password", "")
	v.SetDefault("metadata.db", 0)
	v.SetDefault("metadata.ttl", time.Duration(0))
	v.SetDefault("metadata.table", "codedpad-metadata")
	v.SetDefault("metadata.region", "")
	v.SetDefault("metadata.endpoint", "")

	v.SetDefault("upload.maxSize", 50*1024*1024)
	v.SetDefault("upload.allowedTypes", []string{"image/png", "image/jpeg", "application/pdf"})
	v.SetDefault("upload.uploadExpiry", 5*time.Minute)
	v.SetDefault("upload.downloadExpiry", 10*time.Minute)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CODEDPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// read loads the config file, if any, and decodes the result.
func read(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using defaults.")
		} else {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func LoadAndWatch() error {
	pflag.String("config", "", "Path to the config file (default ./config.yaml or /etc/codedpad/config.yaml).")
	pflag.String("addr", "", "HTTP service address (e.g., '127.0.0.1:4000')")
	pflag.String("certFile", "", "Path to the TLS certificate file.")
	pflag.String("keyFile", "", "Path to the TLS private key file.")
	pflag.String("logLevel", "", "Log level: debug, info, warn, error.")
	pflag.String("storage.driver", "", "Object storage driver: minio or s3.")
	pflag.String("metadata.driver", "", "Metadata store driver: redis or dynamodb.")
	pflag.Parse()

	v := newViper()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind pflags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/codedpad/")
	}

	c, err := read(v)
	if err != nil {
		return err
	}
	mu.Lock()
	config = c
	mu.Unlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("the config file %s changed, reloading...", e.Name)

		var next Config
		if err := v.Unmarshal(&next); err != nil {
			fwlog.Errorf("Error while reloading config: %v", err)
			return
		}
		if err := next.Validate(); err != nil {
			fwlog.Errorf("Reloaded config is invalid, keeping the previous one: %v", err)
			return
		}

		newLogLevel, err := fwlog.ParseLevel(next.LogLevel)
		if err != nil {
			fwlog.Warnf("New log level in config is invalid: %v. Keeping previous level.", err)
		} else {
			fwlog.SetLevel(newLogLevel)
			fwlog.Infof("Log level reloaded successfully to: %s", next.LogLevel)
		}

		mu.Lock()
		config = next
		fns := append([]func(Config){}, listeners...)
		mu.Unlock()

		for _, fn := range fns {
			fn(next)
		}
	})
	v.WatchConfig()

	return nil
}

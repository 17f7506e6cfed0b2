// Package config loads uploader settings from an optional app.env file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	gerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
)

const (
	TransportNative = "native"
	TransportS3     = "s3"
	TransportLocal  = "local"
)

type Config struct {
	Debug            bool          `mapstructure:"B2_DEBUG"`
	ApplicationKeyID string        `mapstructure:"B2_APPLICATION_KEY_ID"`
	ApplicationKey   string        `mapstructure:"B2_APPLICATION_KEY"`
	BucketID         string        `mapstructure:"B2_BUCKET_ID"`
	BucketName       string        `mapstructure:"B2_BUCKET_NAME"`
	BucketPathPrefix string        `mapstructure:"B2_BUCKET_PATH_PREFIX"`
	Transport        string        `mapstructure:"B2_TRANSPORT"`
	S3Region         string        `mapstructure:"B2_S3_REGION"`
	LocalRoot        string        `mapstructure:"B2_LOCAL_ROOT"`
	ReauthInterval   time.Duration `mapstructure:"B2_REAUTH_INTERVAL"`

	PartSize        string        `mapstructure:"UPLOAD_PART_SIZE"`
	SingleThreshold string        `mapstructure:"UPLOAD_SINGLE_THRESHOLD"`
	PartsPerWorker  int           `mapstructure:"UPLOAD_PARTS_PER_WORKER"`
	MaxAttempts     int           `mapstructure:"UPLOAD_MAX_ATTEMPTS"`
	RetryDelay      time.Duration `mapstructure:"UPLOAD_RETRY_DELAY"`
	PartBusyDelay   time.Duration `mapstructure:"UPLOAD_PART_BUSY_DELAY"`
	PartBusyRetries int           `mapstructure:"UPLOAD_PART_BUSY_RETRIES"`
}

var defaults = map[string]any{
	"B2_DEBUG":                 false,
	"B2_APPLICATION_KEY_ID":    "",
	"B2_APPLICATION_KEY":       "",
	"B2_BUCKET_ID":             "",
	"B2_BUCKET_NAME":           "",
	"B2_BUCKET_PATH_PREFIX":    "",
	"B2_TRANSPORT":             TransportNative,
	"B2_S3_REGION":             "",
	"B2_LOCAL_ROOT":            "",
	"B2_REAUTH_INTERVAL":       "22h",
	"UPLOAD_PART_SIZE":         "20MiB",
	"UPLOAD_SINGLE_THRESHOLD":  "200MiB",
	"UPLOAD_PARTS_PER_WORKER":  10,
	"UPLOAD_MAX_ATTEMPTS":      50,
	"UPLOAD_RETRY_DELAY":       "750ms",
	"UPLOAD_PART_BUSY_DELAY":   "1s",
	"UPLOAD_PART_BUSY_RETRIES": 0,
}

// LoadConfig reads path/app.env when present, then the environment.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}

	return cfg, nil
}

// PartSizeBytes parses PartSize, e.g. "20MiB" or "5000000".
func (c Config) PartSizeBytes() (int64, error) {
	return parseSize(c.PartSize)
}

func (c Config) SingleThresholdBytes() (int64, error) {
	return parseSize(c.SingleThreshold)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var fields []gerrors.FieldError

	if c.Transport != TransportLocal {
		if c.ApplicationKeyID == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_APPLICATION_KEY_ID", Message: "required"})
		}
		if c.ApplicationKey == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_APPLICATION_KEY", Message: "required"})
		}
	}

	switch c.Transport {
	case TransportNative:
		if c.BucketID == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_BUCKET_ID", Message: "required for the native transport"})
		}
	case TransportS3:
		if c.BucketName == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_BUCKET_NAME", Message: "required for the s3 transport"})
		}
	case TransportLocal:
		if c.LocalRoot == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_LOCAL_ROOT", Message: "required for the local transport"})
		}
		if c.BucketID == "" {
			fields = append(fields, gerrors.FieldError{Field: "B2_BUCKET_ID", Message: "required for the local transport"})
		}
	default:
		fields = append(fields, gerrors.FieldError{
			Field:   "B2_TRANSPORT",
			Message: fmt.Sprintf("must be one of %q, %q or %q", TransportNative, TransportS3, TransportLocal),
			Value:   c.Transport,
		})
	}

	partSize, err := c.PartSizeBytes()
	if err != nil || partSize <= 0 {
		fields = append(fields, gerrors.FieldError{Field: "UPLOAD_PART_SIZE", Message: "must be a positive size", Value: c.PartSize})
	}

	if _, err := c.SingleThresholdBytes(); err != nil {
		fields = append(fields, gerrors.FieldError{Field: "UPLOAD_SINGLE_THRESHOLD", Message: "must be a size", Value: c.SingleThreshold})
	}

	if c.PartsPerWorker <= 0 {
		fields = append(fields, gerrors.FieldError{Field: "UPLOAD_PARTS_PER_WORKER", Message: "must be positive", Value: c.PartsPerWorker})
	}
	if c.MaxAttempts <= 0 {
		fields = append(fields, gerrors.FieldError{Field: "UPLOAD_MAX_ATTEMPTS", Message: "must be positive", Value: c.MaxAttempts})
	}
	if c.PartBusyRetries < 0 {
		fields = append(fields, gerrors.FieldError{Field: "UPLOAD_PART_BUSY_RETRIES", Message: "cannot be negative", Value: c.PartBusyRetries})
	}
	if c.ReauthInterval <= 0 {
		fields = append(fields, gerrors.FieldError{Field: "B2_REAUTH_INTERVAL", Message: "must be positive", Value: c.ReauthInterval})
	}

	if len(fields) > 0 {
		return gerrors.NewValidation("invalid configuration", fields...).
			WithCode(400).
			WithTextCode("INVALID_CONFIG")
	}

	return nil
}

func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return int64(n), nil
}

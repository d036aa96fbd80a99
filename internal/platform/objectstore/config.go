package objectstore

import (
	"errors"
	"strings"

	"github.com/seqportal/runhub/internal/platform/env"
)

type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketPayloads string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("RUNHUB_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("RUNHUB_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("RUNHUB_MINIO_ACCESS_KEY", "runhub"),
		SecretKey:      env.String("RUNHUB_MINIO_SECRET_KEY", "runhubminio"),
		Region:         env.String("RUNHUB_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketPayloads: env.String("RUNHUB_MINIO_BUCKET_PAYLOADS", "run-payloads"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include a scheme")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketPayloads) == "" {
		return errors.New("payloads bucket is required")
	}
	return nil
}

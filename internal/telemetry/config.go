package telemetry

import (
	"time"

	"codeberg.org/mutker/powerwallmon/internal/errors"
)

const defaultConnectTimeout = 10 * time.Second

type Config struct {
	URL            string
	Token          string
	Org            string
	Bucket         string
	ConnectTimeout time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()

	for key, value := range map[string]string{
		"url":    c.URL,
		"token":  c.Token,
		"org":    c.Org,
		"bucket": c.Bucket,
	} {
		if value == "" {
			return errFactory.WithData(ErrInvalidConfig, key)
		}
	}

	return nil
}

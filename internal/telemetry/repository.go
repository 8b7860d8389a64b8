package telemetry

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"codeberg.org/mutker/powerwallmon/internal/logger"
	"codeberg.org/mutker/powerwallmon/internal/powerwall"
)

type influxRecorder struct {
	cfg      Config
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewRecorder validates the configuration and returns an unconnected
// recorder. Connect establishes the actual session.
func NewRecorder(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	return &influxRecorder{cfg: cfg}, nil
}

func (r *influxRecorder) Connect(ctx context.Context) error {
	errFactory := errors.New()

	client := influxdb2.NewClient(r.cfg.URL, r.cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return errFactory.Wrap(ErrConnectFailed, err)
	}
	if !healthy {
		client.Close()
		return errFactory.WithMessage(ErrConnectFailed, "server not healthy")
	}

	r.client = client
	r.writeAPI = client.WriteAPIBlocking(r.cfg.Org, r.cfg.Bucket)

	logger.Debug().Str("url", r.cfg.URL).Str("bucket", r.cfg.Bucket).Msg("InfluxDB session established")

	return nil
}

// Record writes the power and battery measurements in a single blocking
// call. Batching them into one write keeps the cycle atomic: either
// both measurements land or neither does.
func (r *influxRecorder) Record(ctx context.Context, reading *powerwall.Reading) error {
	errFactory := errors.New()

	if r.writeAPI == nil {
		return errFactory.New(ErrNotConnected)
	}

	if err := r.writeAPI.WritePoint(ctx, buildPoints(reading)...); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (r *influxRecorder) Close() error {
	if r.client == nil {
		return nil
	}

	r.client.Close()
	r.client = nil
	r.writeAPI = nil

	logger.Debug().Msg("InfluxDB session released")

	return nil
}

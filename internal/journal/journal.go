package journal

import (
	"context"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"codeberg.org/mutker/powerwallmon/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation used when the journal is disabled
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Cycle journal disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil {
		return errFactory.New(ErrInvalidEntry)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		return s.repo.Store(ctx, entry)
	}
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopCollector) Record(_ context.Context, _ *Entry) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}

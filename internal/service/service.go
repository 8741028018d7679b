package service

import (
	"time"

	"go.uber.org/zap"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/metrics"
	"sodaledger/backend/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	defaultLowStockThreshold = 10
)

// Service holds the ledger rules. It trusts its caller on authorization; the
// HTTP layer decides who may reach each operation.
type Service struct {
	repo              store.Repository
	logger            *zap.Logger
	metrics           *metrics.Metrics
	lowStockThreshold int
	phoneRegion       string
	now               func() time.Time
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLowStockThreshold(threshold int) Option {
	return func(s *Service) {
		if threshold >= 0 {
			s.lowStockThreshold = threshold
		}
	}
}

// WithPhoneRegion enables E.164 normalisation of customer phone numbers for
// the given ISO region code, e.g. "US".
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		s.phoneRegion = region
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		logger:            zap.NewNop(),
		lowStockThreshold: defaultLowStockThreshold,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() string {
	return s.now().Format(domain.DateLayout)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

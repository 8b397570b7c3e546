package firestore

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/iterator"

	domain "github.com/fleamart/api/internal/domain"
	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/repositories"
)

const healthProbeTimeout = 3 * time.Second

// HealthRepository probes Firestore reachability for health endpoints.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs a Firestore-backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// Collect runs a bounded read probe against Firestore and reports the outcome.
func (r *HealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if r == nil || r.provider == nil {
		return domain.SystemHealthReport{}, errors.New("health repository not initialised")
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	start := time.Now()
	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		CheckedAt: start.UTC(),
	}

	err := r.probe(probeCtx)
	check.Latency = time.Since(start)
	if err != nil {
		check.Status = domain.HealthStatusError
		check.Error = err.Error()
	}

	report := domain.SystemHealthReport{
		Status:      check.Status,
		Checks:      map[string]domain.SystemHealthCheck{"firestore": check},
		GeneratedAt: time.Now().UTC(),
	}
	return report, nil
}

func (r *HealthRepository) probe(ctx context.Context) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(orderCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

var _ repositories.HealthRepository = (*HealthRepository)(nil)

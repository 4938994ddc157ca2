package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gigpay/internal/shared/apperror"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	workerCacheKeyPrefix = "workers:identity:"
	workerCacheTTL       = 10 * time.Minute
)

var (
	ErrWorkerUnknown = apperror.New(
		apperror.CodeNotFound,
		"worker is not registered in the directory",
		http.StatusNotFound,
	)
	ErrWorkerInactive = apperror.New(
		apperror.CodeInvalidState,
		"worker is inactive and cannot be paid",
		http.StatusUnprocessableEntity,
	)
	ErrNoPayoutDestination = apperror.New(
		apperror.CodeInvalidState,
		"worker has no payout destination on file",
		http.StatusUnprocessableEntity,
	)
)

func workerCacheKey(companyID, workerID string) string {
	return workerCacheKeyPrefix + companyID + ":" + workerID
}

// Identity is what the payroll engine needs to know about a worker: where
// the money goes and what name to show.
type Identity struct {
	WorkerID          string `json:"worker_id"`
	FullName          string `json:"full_name"`
	PayoutDestination string `json:"payout_destination"`
}

//go:generate mockgen -source=directory_service.go -destination=mock/directory_service_mock.go -package=mock
type Service interface {
	Resolve(ctx context.Context, companyID string, workerID string) (Identity, error)
}

type service struct {
	repo   Repository
	rdb    *redis.Client
	sf     *singleflight.Group
	logger *zap.Logger
}

func NewService(repo Repository, rdb *redis.Client, logger ...*zap.Logger) Service {
	l := zap.L().Named("directory.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("directory.service")
	}
	return &service{
		repo:   repo,
		rdb:    rdb,
		sf:     &singleflight.Group{},
		logger: l,
	}
}

// Resolve looks the worker up through a redis cache with singleflight so a
// batch of a thousand items does not hammer the workers table per call.
func (s *service) Resolve(ctx context.Context, companyID string, workerID string) (Identity, error) {
	key := workerCacheKey(companyID, workerID)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var cached Identity
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		worker, err := s.repo.FindByIDAndCompany(ctx, companyID, workerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Identity{}, ErrWorkerUnknown
			}
			return Identity{}, err
		}
		if !worker.Active {
			return Identity{}, ErrWorkerInactive
		}
		if worker.PayoutDestination == "" {
			return Identity{}, ErrNoPayoutDestination
		}

		identity := Identity{
			WorkerID:          worker.ID.String(),
			FullName:          worker.FullName,
			PayoutDestination: worker.PayoutDestination,
		}

		if s.rdb != nil {
			if payload, err := json.Marshal(identity); err == nil {
				if err := s.rdb.Set(ctx, key, payload, workerCacheTTL).Err(); err != nil {
					s.logger.Warn("cache worker identity failed",
						zap.String("worker_id", workerID),
						zap.Error(err),
					)
				}
			}
		}

		return identity, nil
	})
	if err != nil {
		return Identity{}, err
	}

	return v.(Identity), nil
}

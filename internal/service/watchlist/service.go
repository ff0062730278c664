// Package watchlist manages per-user lot watch sets.
package watchlist

import (
	"context"
	"errors"

	"github.com/google/uuid"

	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/watchlist"
	"github.com/lothammer/auction-backend/internal/store"
)

// Service wraps the store's watch operations with lot existence checks.
type Service struct {
	store store.Store
}

// NewService creates the watchlist service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Add watches a lot. Idempotent.
func (s *Service) Add(ctx context.Context, userID, lotID uuid.UUID) error {
	if _, err := s.store.Lot(ctx, lotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.ErrLotNotFound
		}
		return err
	}
	return s.store.AddWatch(ctx, userID, lotID)
}

// Remove stops watching a lot. Idempotent; removing a watch that does not
// exist succeeds.
func (s *Service) Remove(ctx context.Context, userID, lotID uuid.UUID) error {
	if _, err := s.store.Lot(ctx, lotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.ErrLotNotFound
		}
		return err
	}
	return s.store.RemoveWatch(ctx, userID, lotID)
}

// List returns the user's watched lots.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*watchlist.Entry, error) {
	return s.store.WatchesByUser(ctx, userID)
}

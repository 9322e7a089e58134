// Package shipments is the state CRUD side of the watcher: adding and
// removing tracked parcels, archive toggles and settings. The poll engine
// itself lives in services/watcher.
package shipments

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/glswatch/internal/cache"
	"github.com/BearBump/glswatch/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const stateCacheKey = "glswatch:state:current"

type Store interface {
	Read(ctx context.Context) (models.State, error)
	Write(ctx context.Context, st models.State) error
}

type Service struct {
	store    Store
	cache    cache.BytesCache
	stateTTL time.Duration
}

func New(store Store, c cache.BytesCache, stateTTL time.Duration) *Service {
	return &Service{store: store, cache: c, stateTTL: stateTTL}
}

// State returns the current document, read-through cached as JSON.
// Кэш — "лучшее усилие": при промахе или ошибке просто идём в хранилище.
func (s *Service) State(ctx context.Context) (models.State, error) {
	if s.cache != nil && s.stateTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, stateCacheKey); err == nil && ok {
			var st models.State
			if json.Unmarshal(b, &st) == nil {
				return st, nil
			}
		}
	}

	st, err := s.store.Read(ctx)
	if err != nil {
		return models.State{}, err
	}
	s.refreshCache(ctx, st)
	return st, nil
}

func (s *Service) AddShipment(ctx context.Context, in models.ShipmentCreateInput) (models.TrackedShipment, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	if in.TrackingNumber == "" {
		return models.TrackedShipment{}, errors.New("trackingNumber is required")
	}
	if in.PostalCode == "" {
		return models.TrackedShipment{}, errors.New("postalCode is required")
	}

	st, err := s.store.Read(ctx)
	if err != nil {
		return models.TrackedShipment{}, err
	}

	tr := models.TrackedShipment{
		ID:             uuid.NewString(),
		Description:    in.Description,
		TrackingNumber: in.TrackingNumber,
		PostalCode:     in.PostalCode,
		History:        []string{},
	}
	st.Trackers = append(st.Trackers, tr)

	if err := s.store.Write(ctx, st); err != nil {
		return models.TrackedShipment{}, err
	}
	s.refreshCache(ctx, st)
	return tr, nil
}

func (s *Service) RemoveShipment(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}

	st, err := s.store.Read(ctx)
	if err != nil {
		return err
	}

	kept := make([]models.TrackedShipment, 0, len(st.Trackers))
	for _, tr := range st.Trackers {
		if tr.ID != id {
			kept = append(kept, tr)
		}
	}
	if len(kept) == len(st.Trackers) {
		return errors.Errorf("shipment %s not found", id)
	}
	st.Trackers = kept

	if err := s.store.Write(ctx, st); err != nil {
		return err
	}
	s.refreshCache(ctx, st)
	return nil
}

func (s *Service) ToggleArchive(ctx context.Context, id string) (models.TrackedShipment, error) {
	st, err := s.store.Read(ctx)
	if err != nil {
		return models.TrackedShipment{}, err
	}

	for i := range st.Trackers {
		if st.Trackers[i].ID != id {
			continue
		}
		st.Trackers[i].Archived = !st.Trackers[i].Archived
		if err := s.store.Write(ctx, st); err != nil {
			return models.TrackedShipment{}, err
		}
		s.refreshCache(ctx, st)
		return st.Trackers[i], nil
	}
	return models.TrackedShipment{}, errors.Errorf("shipment %s not found", id)
}

// SetInterval stores the poll interval, clamped to the 1-minute floor;
// nonsense values fall back to the default.
func (s *Service) SetInterval(ctx context.Context, minutes int) (int, error) {
	if minutes == 0 {
		minutes = models.DefaultIntervalMinutes
	}
	if minutes < models.MinIntervalMinutes {
		minutes = models.MinIntervalMinutes
	}

	st, err := s.store.Read(ctx)
	if err != nil {
		return 0, err
	}
	st.IntervalMinutes = minutes
	if err := s.store.Write(ctx, st); err != nil {
		return 0, err
	}
	s.refreshCache(ctx, st)
	return minutes, nil
}

func (s *Service) SetAutoArchive(ctx context.Context, enabled bool) error {
	st, err := s.store.Read(ctx)
	if err != nil {
		return err
	}
	st.AutoArchiveDelivered = enabled
	if err := s.store.Write(ctx, st); err != nil {
		return err
	}
	s.refreshCache(ctx, st)
	return nil
}

func (s *Service) refreshCache(ctx context.Context, st models.State) {
	if s.cache == nil || s.stateTTL <= 0 {
		return
	}
	if b, err := json.Marshal(st); err == nil {
		_ = s.cache.Set(ctx, stateCacheKey, b, s.stateTTL)
	}
}

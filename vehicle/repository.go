package vehicle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/store"
)

// DefaultPhotoURL is returned when a vehicle has no photo
const DefaultPhotoURL = "/images/scootertemp.jpg"

var ErrInvalidVehicle = errors.New("invalid vehicle")

type (
	// Cache keeps vehicles in front of the record store
	Cache interface {
		Get(ctx context.Context, id string) (Vehicle, bool)
		Set(ctx context.Context, v Vehicle)
		Invalidate(ctx context.Context, id string)
	}

	Repository struct {
		records       store.RecordStore
		objects       store.ObjectStore
		cache         Cache
		fallbackPhoto string
		now           func() time.Time
	}

	RepositoryOption func(*Repository)
)

func WithCache(c Cache) RepositoryOption {
	return func(r *Repository) {
		r.cache = c
	}
}

func WithFallbackPhoto(url string) RepositoryOption {
	return func(r *Repository) {
		r.fallbackPhoto = url
	}
}

func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a repository. objects may be nil if photos are not used.
func NewRepository(records store.RecordStore, objects store.ObjectStore, opts ...RepositoryOption) *Repository {
	r := &Repository{
		records:       records,
		objects:       objects,
		fallbackPhoto: DefaultPhotoURL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func recordPath(id string) string {
	return fmt.Sprintf("%s/%s", Path, id)
}

// PhotoKey returns the object store key of a vehicle photo
func PhotoKey(name string) string {
	return fmt.Sprintf(photoKey, name)
}

// Get loads a vehicle by id. Unknown ids return an error wrapping store.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (Vehicle, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/.#$[]") {
		return Vehicle{}, fmt.Errorf("vehicle.Get '%s': %w", id, store.ErrNotFound)
	}

	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, id); ok {
			return v, nil
		}
	}

	var rec Record
	if err := r.records.Get(ctx, recordPath(id), &rec); err != nil {
		return Vehicle{}, fmt.Errorf("vehicle.Get '%s': %w", id, err)
	}

	v := FromRecord(id, &rec)
	if r.cache != nil {
		r.cache.Set(ctx, v)
	}
	return v, nil
}

// Create registers a new vehicle at c under a fresh push key
func (r *Repository) Create(ctx context.Context, name, location string, c geo.Coordinate) (Vehicle, error) {
	if strings.TrimSpace(name) == "" {
		return Vehicle{}, fmt.Errorf("%w: missing name", ErrInvalidVehicle)
	}
	if err := c.Validate(); err != nil {
		return Vehicle{}, fmt.Errorf("%w: %w", ErrInvalidVehicle, err)
	}

	v := Vehicle{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(name),
		Location:   strings.TrimSpace(location),
		Timestamp:  r.now(),
		Coordinate: c,
	}

	rec := v.Record()
	if err := r.records.Set(ctx, recordPath(v.ID), &rec); err != nil {
		return Vehicle{}, fmt.Errorf("vehicle.Create: %w", err)
	}

	log.Info().Str("vehicle", v.ID).Str("name", v.Name).Msg("vehicle created")
	// the record keeps milliseconds only
	return FromRecord(v.ID, &rec), nil
}

// UpdateLocation writes a new location label and coordinate for id, stamped with the current time
func (r *Repository) UpdateLocation(ctx context.Context, id, location string, c geo.Coordinate) (Vehicle, error) {
	if err := c.Validate(); err != nil {
		return Vehicle{}, fmt.Errorf("%w: %w", ErrInvalidVehicle, err)
	}

	ts := r.now().Truncate(time.Millisecond)
	if err := r.records.Update(ctx, recordPath(id), LocationFields(location, c, ts)); err != nil {
		return Vehicle{}, fmt.Errorf("vehicle.UpdateLocation '%s': %w", id, err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, id)
	}

	v, err := r.Get(ctx, id)
	if err != nil {
		// the update is committed, only the name is unknown
		log.Warn().Err(err).Str("vehicle", id).Msg("re-reading updated vehicle failed")
		return Vehicle{ID: id, Location: location, Timestamp: ts, Coordinate: c}, nil
	}
	return v, nil
}

// Latest returns the most recently placed vehicle
func (r *Repository) Latest(ctx context.Context) (Vehicle, error) {
	records, err := r.records.Query(ctx, Path, "timestamp", 1)
	if err != nil {
		return Vehicle{}, fmt.Errorf("vehicle.Latest: %w", err)
	}
	if len(records) == 0 {
		return Vehicle{}, fmt.Errorf("vehicle.Latest: %w", store.ErrNotFound)
	}

	var rec Record
	if err := records[0].Decode(&rec); err != nil {
		return Vehicle{}, fmt.Errorf("vehicle.Latest: %w", err)
	}
	return FromRecord(records[0].Key, &rec), nil
}

// List returns all vehicles ordered by timestamp
func (r *Repository) List(ctx context.Context) ([]Vehicle, error) {
	records, err := r.records.Query(ctx, Path, "timestamp", 0)
	if err != nil {
		return nil, fmt.Errorf("vehicle.List: %w", err)
	}

	vehicles := make([]Vehicle, 0, len(records))
	for _, rec := range records {
		var vr Record
		if err := rec.Decode(&vr); err != nil {
			log.Warn().Err(err).Str("vehicle", rec.Key).Msg("skipping malformed record")
			continue
		}
		vehicles = append(vehicles, FromRecord(rec.Key, &vr))
	}
	return vehicles, nil
}

// UploadPhoto stores the photo of the named vehicle
func (r *Repository) UploadPhoto(ctx context.Context, name string, photo io.Reader) error {
	if r.objects == nil {
		return fmt.Errorf("vehicle.UploadPhoto: no object store")
	}
	if err := r.objects.Upload(ctx, PhotoKey(name), photo); err != nil {
		return fmt.Errorf("vehicle.UploadPhoto '%s': %w", name, err)
	}
	return nil
}

// PhotoURL returns the download URL of the vehicle photo or the fallback image
func (r *Repository) PhotoURL(ctx context.Context, name string) string {
	if r.objects == nil {
		return r.fallbackPhoto
	}

	url, err := r.objects.DownloadURL(ctx, PhotoKey(name))
	if err != nil {
		log.Debug().Err(err).Str("name", name).Msg("photo lookup failed, using fallback")
		return r.fallbackPhoto
	}
	return url
}

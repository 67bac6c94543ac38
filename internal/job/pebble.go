package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
)

// Compile-time check that PebbleRepository implements Repository.
var _ Repository = (*PebbleRepository)(nil)

// keyPrefix namespaces job records inside the store. keyUpperBound is the
// first key past the namespace ('0' follows '/').
const (
	keyPrefix     = "job/"
	keyUpperBound = "job0"
)

// PebbleRepository persists jobs as JSON records in a Pebble store, keyed by
// job ID.
type PebbleRepository struct {
	db     *pebble.DB
	logger *slog.Logger
}

// OpenPebbleRepository opens (or creates) the store at dir.
func OpenPebbleRepository(dir string, logger *slog.Logger) (*PebbleRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &PebbleRepository{db: db, logger: logger}, nil
}

func jobKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// Save writes the job record synchronously.
func (r *PebbleRepository) Save(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(job.Clone())
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.db.Set(jobKey(job.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID reads one job record.
func (r *PebbleRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := r.db.Get(jobKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	defer func() { _ = closer.Close() }()

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// List scans every job record, oldest first. Undecodable records are skipped.
func (r *PebbleRepository) List(ctx context.Context) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpperBound),
	})
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	defer func() { _ = iter.Close() }()

	jobs := make([]*Job, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var job Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			r.logger.Warn("skipping undecodable job record",
				slog.String("key", string(iter.Key())),
				slog.String("error", err.Error()),
			)
			continue
		}
		jobs = append(jobs, &job)
	}

	sortByCreation(jobs)
	return jobs, nil
}

// Delete removes a job record.
func (r *PebbleRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := jobKey(id)
	_, closer, err := r.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("read job %s: %w", id, err)
	}
	_ = closer.Close()

	if err := r.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Close flushes and closes the store.
func (r *PebbleRepository) Close() error {
	return r.db.Close()
}

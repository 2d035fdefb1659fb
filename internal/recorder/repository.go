package recorder

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/errors"
	"codeberg.org/mutker/encoderctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Recorder persists captured samples to a sqlite session database. The
// in-memory log stays the canonical store; this is an opt-in export
// collaborator for keeping measurement sessions around after the
// process exits.
type Recorder interface {
	Record(sample buffer.Sample) error
	Close() error
}

type repository struct {
	db            *sql.DB
	cfg           Config
	session       int64 // unix timestamp identifying this capture session
	mu            sync.Mutex
	pending       []buffer.Sample
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func New(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &repository{
		db:            db,
		cfg:           cfg,
		session:       time.Now().Unix(),
		pending:       make([]buffer.Sample, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go r.flusher()

	logger.Info().
		Str("path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Session recorder initialized")

	return r, nil
}

func (r *repository) Record(sample buffer.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, sample)

	if len(r.pending) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	logger.Info().Msg("Session recorder closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Error().Err(err).Msg("Failed to flush samples")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Error().Err(err).Msg("Failed to flush samples on shutdown")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes pending samples in one transaction. Callers must hold mu.
func (r *repository) flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransaction, err)
	}

	stmt, err := tx.Prepare(insertSampleSQL())
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransaction, err)
	}
	defer stmt.Close()

	for _, s := range r.pending {
		var force any
		if s.Force != nil {
			force = *s.Force
		}
		if _, err := stmt.Exec(r.session, s.Time, s.Pulses, s.Delta, force); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransaction, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransaction, err)
	}

	logger.Debug().Int("records", len(r.pending)).Msg("Flushed samples to database")
	r.pending = r.pending[:0]

	return nil
}

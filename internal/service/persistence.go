package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/internal/errors"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// SaveToFile serializes a full pool snapshot to pretty-printed JSON at the
// given path, creating parent directories as needed.
func (p *Pool) SaveToFile(path string) error {
	p.mu.RLock()
	snapshot := domain.PoolSnapshot{
		Proxies: p.proxies,
		Order:   p.order,
		Index:   p.index,
		Config:  p.config,
		SavedAt: time.Now(),
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodePersistence, "persistence", "failed to marshal pool snapshot")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapError(err, errors.ErrCodePersistence, "persistence", "failed to create snapshot directory")
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapError(err, errors.ErrCodePersistence, "persistence", "failed to write snapshot file")
	}

	p.logger.WithField("path", path).Debug("Pool snapshot saved")
	return nil
}

// LoadFromFile restores the pool from a snapshot file. A missing file is not
// an error (first-run semantics). On success the proxy map, order and cursor
// are replaced wholesale; the config is replaced only when the snapshot's
// strategy is non-empty, so a snapshot written before any config was set
// cannot clobber the live policy.
func (p *Pool) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.WithField("path", path).Info("No pool snapshot found, starting empty")
			return nil
		}
		return errors.WrapError(err, errors.ErrCodePersistence, "persistence", "failed to read snapshot file")
	}

	var snapshot domain.PoolSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return errors.WrapError(err, errors.ErrCodePersistence, "persistence", "failed to parse snapshot file")
	}
	if snapshot.Proxies == nil {
		snapshot.Proxies = make(map[string]*domain.ProxyEndpoint)
	}

	p.mu.Lock()
	p.proxies = snapshot.Proxies
	p.order = snapshot.Order
	p.index = snapshot.Index
	if snapshot.Config.Strategy != "" {
		p.config = snapshot.Config
	}
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"path":     path,
		"proxies":  len(snapshot.Proxies),
		"saved_at": snapshot.SavedAt.Format(time.RFC3339),
	}).Info("Pool snapshot loaded")

	return nil
}

// autoSaveLocked schedules a background save when persistence is configured.
// Caller must hold the write lock; the save itself runs on the saver
// goroutine with the lock released.
func (p *Pool) autoSaveLocked() {
	if p.config.PersistencePath == "" {
		return
	}
	p.saver.schedule()
}

// autoSaver is a single background worker with a one-slot "latest wins"
// debounce: a burst of mutations collapses into one pending save instead of
// one goroutine per mutation.
type autoSaver struct {
	pool   *Pool
	logger *logger.Logger
	notify chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

func newAutoSaver(pool *Pool, log *logger.Logger) *autoSaver {
	return &autoSaver{
		pool:   pool,
		logger: log,
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *autoSaver) start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.notify:
				s.save()
			case <-s.quit:
				// Flush a pending save before exiting
				select {
				case <-s.notify:
					s.save()
				default:
				}
				return
			}
		}
	}()
}

// schedule marks a save as pending without blocking the caller
func (s *autoSaver) schedule() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *autoSaver) stop() {
	close(s.quit)
	<-s.done
}

func (s *autoSaver) save() {
	path := s.pool.Config().PersistencePath
	if path == "" {
		return
	}
	if err := s.pool.SaveToFile(path); err != nil {
		// Auto-save is best effort; failures are logged, never propagated
		s.logger.WithError(err).Warn("Auto-save failed")
	}
}

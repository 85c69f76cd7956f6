package settings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"gopkg.in/yaml.v3"

	"github.com/sitecache/sitecache/internal/events"
)

var settingsKey = []byte("settings/cache")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("settings store closed")

// Store persists CacheSettings and actor preferences in LevelDB and serves the
// compiled snapshot lock-free.
type Store struct {
	db         *leveldb.DB
	current    atomic.Pointer[Snapshot]
	dispatcher *events.Dispatcher
	closed     atomic.Bool
}

// Open opens (or creates) the database at path. seed is written only when no
// settings document exists yet, so the config file provides first-start
// defaults and the admin API owns the value afterwards.
func Open(path string, seed CacheSettings, dispatcher *events.Dispatcher) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}

	s := &Store{db: db, dispatcher: dispatcher}

	loaded, err := s.load()
	switch {
	case err == nil:
		s.current.Store(Compile(loaded))
	case errors.Is(err, leveldb.ErrNotFound):
		clean, _ := Sanitize(seed)
		if err := s.persist(clean); err != nil {
			db.Close()
			return nil, err
		}
		s.current.Store(Compile(clean))
	default:
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Current returns the immutable snapshot in effect. Callers read it once per
// request and keep using that value.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Save is the only write path: it sanitizes the document, persists it, swaps
// the snapshot and dispatches settings.changed. Sanitizer warnings are
// returned alongside the new snapshot.
func (s *Store) Save(ctx context.Context, next CacheSettings, actor string) (*Snapshot, []string, error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	clean, warnings := Sanitize(next)
	if err := s.persist(clean); err != nil {
		return nil, warnings, err
	}
	snap := Compile(clean)
	s.current.Store(snap)

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, events.Event{Kind: events.SettingsChanged, Actor: actor}); err != nil {
			return snap, warnings, err
		}
	}
	return snap, warnings, nil
}

// Export renders the current settings as a YAML document.
func (s *Store) Export() ([]byte, error) {
	snap := s.Current()
	if snap == nil {
		return nil, ErrClosed
	}
	return yaml.Marshal(snap.Settings)
}

func (s *Store) load() (CacheSettings, error) {
	raw, err := s.db.Get(settingsKey, nil)
	if err != nil {
		return CacheSettings{}, err
	}
	var out CacheSettings
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return CacheSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func (s *Store) persist(doc CacheSettings) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.db.Put(settingsKey, raw, nil); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sitecache/sitecache/internal/events"
)

const prefPrefix = "pref/"

// ClearChoice returns the actor's stored publish-invalidation preference,
// defaulting to ClearSpecific.
func (s *Store) ClearChoice(actor string) (events.ClearChoice, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return events.ClearSpecific, nil
	}
	if s.closed.Load() {
		return events.ClearSpecific, ErrClosed
	}
	raw, err := s.db.Get(prefKey(actor), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return events.ClearSpecific, nil
	}
	if err != nil {
		return events.ClearSpecific, fmt.Errorf("read preference: %w", err)
	}
	choice, err := events.ParseClearChoice(string(raw))
	if err != nil || choice == events.ClearUnset {
		return events.ClearSpecific, nil
	}
	return choice, nil
}

// SetClearChoice records the actor's preference.
func (s *Store) SetClearChoice(actor string, choice events.ClearChoice) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return errors.New("actor required")
	}
	if choice != events.ClearSpecific && choice != events.ClearAll {
		return fmt.Errorf("invalid clear choice %q", choice)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.Put(prefKey(actor), []byte(choice), nil); err != nil {
		return fmt.Errorf("write preference: %w", err)
	}
	return nil
}

// Actors lists actors with a stored preference.
func (s *Store) Actors() ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefPrefix)), nil)
	defer iter.Release()

	var actors []string
	for iter.Next() {
		actors = append(actors, strings.TrimPrefix(string(iter.Key()), prefPrefix))
	}
	return actors, iter.Error()
}

func prefKey(actor string) []byte {
	return []byte(prefPrefix + actor)
}

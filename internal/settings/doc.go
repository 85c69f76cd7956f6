// Package settings owns the administrative cache configuration: the mutable
// CacheSettings document persisted in an embedded LevelDB database, the
// compiled immutable Snapshot that each request reads exactly once, and the
// per-actor invalidation preferences. Settings change only through
// Store.Save, which validates, persists, swaps the snapshot and announces
// settings.changed so the page cache is flushed.
package settings

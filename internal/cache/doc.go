// Package cache provides a file-based cache for model responses.
//
// Entries are keyed by a SHA-256 hash of everything that determines a
// completion: backend, model, system and user text, temperature and token
// limit. Each entry is one JSON file holding the raw response and its
// creation time. Expired entries are skipped on read, removed lazily, and
// dropped by [Cache.Prune].
//
// The default directory is $XDG_CACHE_HOME/quorum (or the OS-appropriate
// equivalent). Snippets reach the cache after secret redaction.
package cache

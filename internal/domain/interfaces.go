package domain

import (
	"context"
	"encoding/json"
)

// ObjectStore holds every object fetched so far. It is shared between
// controllers and written concurrently by in-flight fetches, so
// implementations must be safe for concurrent use.
type ObjectStore interface {
	// ContainsKey reports whether key has already been synced.
	// Once true for a key it stays true.
	ContainsKey(key string) bool

	// Put inserts objects, replacing none that are already present
	Put(objs ...*Object) error

	// Export returns a serializable snapshot keyed by object key
	Export() map[string]json.RawMessage
}

// Source is the remote service seen by the sync controller.
// Implemented by adapter/source/rdio.
type Source interface {
	// FindUser resolves an email or vanity name. A nil user with a nil error
	// means no such user exists.
	FindUser(ctx context.Context, email, vanityName string) (*User, error)

	// LoadUserPlaylists appends the user's playlists of the given kind to keys
	LoadUserPlaylists(ctx context.Context, kind PlaylistKind, keys *UserKeyStore) error

	// LoadFavoritesAndSyncedKeys appends favorites and synced keys to keys
	LoadFavoritesAndSyncedKeys(ctx context.Context, keys *UserKeyStore) error

	// LoadObjects fetches keys, inserts them into store and calls onObject
	// once per fetched object
	LoadObjects(ctx context.Context, store ObjectStore, keys []string, onObject func(*Object)) error
}

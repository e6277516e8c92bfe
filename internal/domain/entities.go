package domain

import (
	"encoding/json"
	"strings"
	"sync"
)

// User represents a resolved remote account
type User struct {
	Key         string `json:"key"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Username    string `json:"username"` // vanity name
	URL         string `json:"url"`
	IsProtected bool   `json:"isProtected"`
}

// DisplayName returns "First Last", falling back to the vanity name
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// PlaylistKind distinguishes the playlist categories attached to a user
type PlaylistKind string

const (
	PlaylistKindOwned      PlaylistKind = "owned"
	PlaylistKindFavorites  PlaylistKind = "favorites"
	PlaylistKindSubscribed PlaylistKind = "subscribed"
	PlaylistKindCollab     PlaylistKind = "collab"
)

// PlaylistKinds returns every playlist kind in sync order
func PlaylistKinds() []PlaylistKind {
	return []PlaylistKind{
		PlaylistKindOwned,
		PlaylistKindFavorites,
		PlaylistKindSubscribed,
		PlaylistKindCollab,
	}
}

// UserKeyStore accumulates the object keys that belong to one user.
// It only grows; keys are never removed once added.
type UserKeyStore struct {
	mu sync.Mutex

	User          *User                     `json:"user"`
	PlaylistsKeys map[PlaylistKind][]string `json:"playlistsKeys"`
	SyncedKeys    []string                  `json:"syncedKeys"`
	FavoritesKeys []string                  `json:"favoritesKeys"`
}

// NewUserKeyStore creates an empty key store for user
func NewUserKeyStore(user *User) *UserKeyStore {
	return &UserKeyStore{
		User:          user,
		PlaylistsKeys: make(map[PlaylistKind][]string),
	}
}

// AddPlaylistKeys appends playlist keys of the given kind
func (s *UserKeyStore) AddPlaylistKeys(kind PlaylistKind, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlaylistsKeys == nil {
		s.PlaylistsKeys = make(map[PlaylistKind][]string)
	}
	s.PlaylistsKeys[kind] = append(s.PlaylistsKeys[kind], keys...)
}

// AddSyncedKeys appends keys the user synced for offline use
func (s *UserKeyStore) AddSyncedKeys(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SyncedKeys = append(s.SyncedKeys, keys...)
}

// AddFavoritesKeys appends keys the user marked as favorites
func (s *UserKeyStore) AddFavoritesKeys(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FavoritesKeys = append(s.FavoritesKeys, keys...)
}

// UserKey returns the owning user's key, or "" when the user is unknown
func (s *UserKeyStore) UserKey() string {
	if s.User == nil {
		return ""
	}
	return s.User.Key
}

// AllKeys returns every known key in first-seen order without duplicates:
// playlists (in PlaylistKinds order), then synced, then favorites.
func (s *UserKeyStore) AllKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var all []string
	add := func(keys []string) {
		for _, k := range keys {
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, k)
		}
	}

	for _, kind := range PlaylistKinds() {
		add(s.PlaylistsKeys[kind])
	}
	add(s.SyncedKeys)
	add(s.FavoritesKeys)
	return all
}

// Snapshot returns a copy that is safe to serialize while the receiver keeps growing
func (s *UserKeyStore) Snapshot() *UserKeyStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlists := make(map[PlaylistKind][]string, len(s.PlaylistsKeys))
	for kind, keys := range s.PlaylistsKeys {
		playlists[kind] = append([]string(nil), keys...)
	}
	return &UserKeyStore{
		User:          s.User,
		PlaylistsKeys: playlists,
		SyncedKeys:    cloneKeys(s.SyncedKeys),
		FavoritesKeys: cloneKeys(s.FavoritesKeys),
	}
}

func cloneKeys(keys []string) []string {
	if keys == nil {
		return nil
	}
	return append([]string(nil), keys...)
}

// Object is one fetched remote object. Raw holds the object exactly as the
// service returned it; Key, Type and Name are lifted out for indexing.
type Object struct {
	Key  string          `json:"key"`
	Type string          `json:"type"`
	Name string          `json:"name"`
	Raw  json.RawMessage `json:"raw"`
}

// ObjectKeyVisitor receives every object key referenced by a fetched object
type ObjectKeyVisitor interface {
	VisitObjectKey(key string)
}

// VisitorFunc adapts a plain function to ObjectKeyVisitor
type VisitorFunc func(key string)

func (f VisitorFunc) VisitObjectKey(key string) { f(key) }

// AcceptVisitor reports every reference held by the object to v
func (o *Object) AcceptVisitor(v ObjectKeyVisitor) {
	o.VisitKeys(v.VisitObjectKey)
}

// VisitKeys calls fn once for each distinct object key the object refers to.
//
// References are found by field naming convention:
//   - top-level string fields ending in "Key" (e.g. albumKey, ownerKey)
//   - top-level string arrays ending in "Keys" (e.g. trackKeys)
//   - arrays of embedded objects carrying their own "key" (e.g. tracks)
//
// The object's own key is never reported.
func (o *Object) VisitKeys(fn func(key string)) {
	if len(o.Raw) == 0 {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(o.Raw, &fields); err != nil {
		return
	}

	seen := map[string]struct{}{o.Key: {}}
	emit := func(key string) {
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		fn(key)
	}

	for name, value := range fields {
		switch {
		case name == "key":
		case strings.HasSuffix(name, "Key"):
			var key string
			if json.Unmarshal(value, &key) == nil {
				emit(key)
			}
		case strings.HasSuffix(name, "Keys"):
			var keys []string
			if json.Unmarshal(value, &keys) == nil {
				for _, k := range keys {
					emit(k)
				}
			}
		default:
			var embedded []struct {
				Key string `json:"key"`
			}
			if json.Unmarshal(value, &embedded) == nil {
				for _, e := range embedded {
					emit(e.Key)
				}
			}
		}
	}
}

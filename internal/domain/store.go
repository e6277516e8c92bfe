package domain

// UserKeyRepository persists user key stores so an export can be rebuilt
// later without talking to the remote service again.
type UserKeyRepository interface {
	SaveUserKeys(identifier string, keys *UserKeyStore) error
	GetUserKeys(identifier string) (*UserKeyStore, bool)
}

// SyncStore is everything the CLI needs from local storage.
type SyncStore interface {
	ObjectStore
	UserKeyRepository

	Get(key string) (*Object, bool)
	Keys() []string
	Objects() []*Object
	Len() int
	Close() error
}

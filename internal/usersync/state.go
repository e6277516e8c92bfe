package usersync

// SyncState is one phase of a user sync. States are ordered; a controller
// only ever moves forward through them.
type SyncState int

const (
	Start SyncState = iota
	FindingUser
	FoundUser
	SyncingUserKeys
	SyncedUserKeys
	SyncingObjects
	SyncedObjects
	Finished
)

var stateNames = [...]string{
	Start:           "Start",
	FindingUser:     "FindingUser",
	FoundUser:       "FoundUser",
	SyncingUserKeys: "SyncingUserKeys",
	SyncedUserKeys:  "SyncedUserKeys",
	SyncingObjects:  "SyncingObjects",
	SyncedObjects:   "SyncedObjects",
	Finished:        "Finished",
}

// States returns every state in transition order
func States() []SyncState {
	return []SyncState{Start, FindingUser, FoundUser, SyncingUserKeys,
		SyncedUserKeys, SyncingObjects, SyncedObjects, Finished}
}

func (s SyncState) String() string {
	if s < Start || s > Finished {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in logs and JSON
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Next returns the state that follows s. Finished is terminal.
func (s SyncState) Next() SyncState {
	if s >= Finished {
		return Finished
	}
	return s + 1
}

// Label is the human-readable phase description shown while in s
func (s SyncState) Label() string {
	switch s {
	case Start:
		return "Starting"
	case FindingUser:
		return "Finding user"
	case FoundUser:
		return "Found user"
	case SyncingUserKeys:
		return "Loading playlists and collection keys"
	case SyncedUserKeys:
		return "Loaded collection keys"
	case SyncingObjects:
		return "Fetching objects"
	case SyncedObjects:
		return "Fetched objects"
	case Finished:
		return "Finished"
	default:
		return s.String()
	}
}

// ParseState returns the state named name
func ParseState(name string) (SyncState, bool) {
	for _, s := range States() {
		if s.String() == name {
			return s, true
		}
	}
	return Start, false
}

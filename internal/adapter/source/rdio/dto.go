package rdio

import "encoding/json"

// envelope wraps every web service response
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result"`
}

// userDTO is the user object returned by findUser
type userDTO struct {
	Key         string `json:"key"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	VanityName  string `json:"vanityName,omitempty"`
	URL         string `json:"url,omitempty"`
	Type        string `json:"type,omitempty"`
	IsProtected bool   `json:"isProtected,omitempty"`
}

// keyedDTO is the minimal shape of any listed object (playlists, favorites, synced)
type keyedDTO struct {
	Key string `json:"key"`
}

// objectHead holds the fields lifted out of a fetched object for indexing.
// Tracks, albums and artists carry "name"; playlists carry it too.
type objectHead struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// tokenDTO is the OAuth 2.0 token endpoint response
type tokenDTO struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}

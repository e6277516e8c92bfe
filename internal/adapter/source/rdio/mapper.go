package rdio

import (
	"encoding/json"
	"fmt"

	"github.com/mmcdole/rdioexport/internal/domain"
)

// MapUser converts a web service user to a domain user
func MapUser(u userDTO) *domain.User {
	return &domain.User{
		Key:         u.Key,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Username:    u.VanityName,
		URL:         u.URL,
		IsProtected: u.IsProtected,
	}
}

// MapKeys returns the non-empty keys of listed objects
func MapKeys(items []keyedDTO) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		if it.Key != "" {
			keys = append(keys, it.Key)
		}
	}
	return keys
}

// MapObject wraps a raw fetched object. The raw bytes are kept untouched.
func MapObject(key string, raw json.RawMessage) (*domain.Object, error) {
	var head objectHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to parse object %s: %w", key, err)
	}
	if head.Key == "" {
		head.Key = key
	}
	return &domain.Object{
		Key:  head.Key,
		Type: head.Type,
		Name: head.Name,
		Raw:  raw,
	}, nil
}

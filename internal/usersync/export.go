package usersync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmcdole/rdioexport/internal/domain"
)

// UnknownUserFileName is used when no identifier is known
const UnknownUserFileName = "UnknownRdioUser.json"

// ErrNoUserKeys is returned when exporting before the user keys are loaded
var ErrNoUserKeys = errors.New("usersync: no user keys to export")

// ExportDocument is the root of an export file.
type ExportDocument struct {
	Users   []ExportUser               `json:"Users"`
	Objects map[string]json.RawMessage `json:"Objects"`
}

// ExportUser lists the keys that belong to one user. Nil lists are written
// as null rather than omitted.
type ExportUser struct {
	UserKey       string                           `json:"UserKey"`
	SyncedKeys    []string                         `json:"SyncedKeys"`
	FavoritesKeys []string                         `json:"FavoritesKeys"`
	PlaylistsKeys map[domain.PlaylistKind][]string `json:"PlaylistsKeys"`
}

// BuildExport assembles the export document for keys and every object in store
func BuildExport(keys *domain.UserKeyStore, store domain.ObjectStore) (*ExportDocument, error) {
	if keys == nil {
		return nil, ErrNoUserKeys
	}
	snap := keys.Snapshot()
	return &ExportDocument{
		Users: []ExportUser{{
			UserKey:       snap.UserKey(),
			SyncedKeys:    snap.SyncedKeys,
			FavoritesKeys: snap.FavoritesKeys,
			PlaylistsKeys: snap.PlaylistsKeys,
		}},
		Objects: store.Export(),
	}, nil
}

// WriteExport writes doc to w as indented JSON
func WriteExport(w io.Writer, doc *ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// WriteExportFile writes doc to path, creating parent directories as needed.
// The file is written next to path and renamed into place.
func WriteExportFile(path string, doc *ExportDocument) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rdioexport-*.json")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := WriteExport(tmp, doc); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// FileName returns the export file name for identifier
func FileName(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return UnknownUserFileName
	}
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(identifier)
	return fmt.Sprintf("RdioExport_%s.json", safe)
}

// FileName returns the export file name for this controller's user
func (c *Controller) FileName() string {
	return FileName(c.identifier)
}

// Export writes the user's keys and the whole shared store to w. It may be
// called after a cancelled run to export what was fetched so far.
func (c *Controller) Export(w io.Writer) error {
	doc, err := BuildExport(c.UserKeys(), c.store)
	if err != nil {
		return err
	}
	return WriteExport(w, doc)
}

// ExportFile writes the export to path
func (c *Controller) ExportFile(path string) error {
	doc, err := BuildExport(c.UserKeys(), c.store)
	if err != nil {
		return err
	}
	if err := WriteExportFile(path, doc); err != nil {
		c.logger.Error("failed to write export", "path", path, "error", err)
		return err
	}
	c.logger.Info("wrote export", "path", path, "objects", len(doc.Objects))
	return nil
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/mmcdole/rdioexport/internal/usersync"
)

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Identifier string `arg:"" help:"Email address or vanity name used when syncing"`
	Output     string `short:"o" help:"Directory for the export file (defaults to export.dir)"`
}

func (x *ExportCmd) Run(root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer e.Close()

	keys, ok := e.store.GetUserKeys(x.Identifier)
	if !ok {
		return fmt.Errorf("no synced keys for %q, run sync first", x.Identifier)
	}

	doc, err := usersync.BuildExport(keys, e.store)
	if err != nil {
		return err
	}

	path := filepath.Join(e.exportDir(x.Output), usersync.FileName(x.Identifier))
	if err := usersync.WriteExportFile(path, doc); err != nil {
		return err
	}
	e.logger.Info("wrote export", "identifier", x.Identifier, "path", path, "objects", len(doc.Objects))
	fmt.Printf("wrote %s (%d objects)\n", path, len(doc.Objects))
	return nil
}

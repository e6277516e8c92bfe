package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmcdole/rdioexport/internal/adapter"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(root *CLI) error {
	path := root.Config
	if path == "" {
		path = filepath.Join(adapter.DefaultConfigPath(), "config.yaml")
	}
	path = adapter.ExpandHome(path)

	if _, err := os.Stat(path); err == nil && !i.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := adapter.SaveConfig(adapter.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mmcdole/rdioexport/internal/search"
	"github.com/mmcdole/rdioexport/internal/tui/styles"
)

// FindCmd implements the 'find' command.
type FindCmd struct {
	Query string `arg:"" help:"Text to match against object names (or keys with --keys)"`
	Keys  bool   `help:"Match against object keys instead of names"`
	Type  string `short:"t" help:"Only match objects of this type (t, a, r, p, s)"`
	Limit int    `short:"n" help:"Maximum number of results" default:"20"`
}

func (f *FindCmd) Run(root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer e.Close()

	idx := search.NewIndex(e.store.Objects())

	var results []search.Result
	if f.Keys {
		results = idx.Keys(f.Query, f.Limit)
	} else {
		results = idx.Names(f.Query, f.Type, f.Limit)
	}
	printResults(os.Stdout, results, !f.Keys)
	return nil
}

func printResults(w io.Writer, results []search.Result, highlightNames bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, styles.DimStyle.Render("no matches"))
		return
	}
	for _, r := range results {
		name := r.Object.Name
		if highlightNames {
			name = highlight(name, r.MatchedIndexes)
		}
		fmt.Fprintf(w, "%-12s %-2s %s\n", r.Object.Key, r.Object.Type, name)
	}
}

// highlight renders the bytes of s at matched in the accent style
func highlight(s string, matched []int) string {
	if len(matched) == 0 || len(strings.ToLower(s)) != len(s) {
		return s
	}
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}

	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(styles.AccentStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes"
)

// runBatch decodes a JSON array of items from in, executes it and writes the
// records to out as a JSON array. Records produced before a fail-fast abort
// are still written; the abort is returned as the error.
func runBatch(ctx context.Context, client *sfnodes.Client, in io.Reader, out io.Writer) error {
	var items []sfnodes.Item
	if err := json.NewDecoder(in).Decode(&items); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}

	records, execErr := client.Execute(ctx, items)
	if records == nil {
		records = []sfnodes.OutputRecord{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return execErr
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"
)

// fetchOrCache runs fetch against the live orchestrator and caches the
// result under key, unless --offline is set (serve the cache directly)
// or fetch fails with a connection error (fall back to the last cached
// snapshot, announcing the fallback on stderr).
func fetchOrCache(ctx context.Context, key string, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if offline {
		payload, fetchedAt, ok, err := cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no cached snapshot for %q; run without --offline first", key)
		}
		fmt.Fprintf(os.Stderr, "# serving cached snapshot from %s\n", fetchedAt.Format(time.RFC3339))
		return payload, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		if payload, _, ok, cacheErr := cache.Get(ctx, key); cacheErr == nil && ok {
			fmt.Fprintf(os.Stderr, "# orchestrator unreachable (%v); serving last cached snapshot\n", err)
			return payload, nil
		}
		return nil, err
	}

	if err := cache.Put(ctx, key, payload); err != nil {
		fmt.Fprintf(os.Stderr, "# warning: failed to update local cache: %v\n", err)
	}
	return payload, nil
}

// printPayload renders a raw JSON response either as pretty JSON or as
// a tab-aligned table, following --output.
func printPayload(payload json.RawMessage) error {
	if outputFormat == "json" {
		var buf interface{}
		if err := json.Unmarshal(payload, &buf); err != nil {
			return err
		}
		out, err := json.MarshalIndent(buf, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	return printTable(payload)
}

func printTable(payload json.RawMessage) error {
	var asSlice []map[string]any
	if err := json.Unmarshal(payload, &asSlice); err == nil {
		return printRows(asSlice)
	}

	var asMap map[string]any
	if err := json.Unmarshal(payload, &asMap); err == nil {
		return printRows([]map[string]any{asMap})
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}
	fmt.Printf("%v\n", raw)
	return nil
}

func printRows(rows []map[string]any) error {
	if len(rows) == 0 {
		fmt.Println("(no results)")
		return nil
	}

	columns := columnOrder(rows)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatCell(row[col]))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// columnOrder takes the union of keys across rows, sorted, so columns
// stay stable even when some rows omit omitempty fields.
func columnOrder(rows []map[string]any) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// cacheKeyFor builds stable cache keys for parameterized read commands.
func cacheKeyFor(parts ...string) string {
	key := "whimctl"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

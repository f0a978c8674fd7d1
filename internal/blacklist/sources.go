package blacklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Source names, used in refresh bookkeeping and entry provenance.
const (
	SourceExport = "export"
	SourceLols   = "lols"
)

// RefreshResult reports what a refresh run loaded.
type RefreshResult struct {
	Total        int
	SourceCounts map[string]int
	Skipped      int
	Failed       []string
}

type source struct {
	name  string
	url   string
	parse func(r io.Reader) (map[int64]Entry, int)
}

// Refresher downloads the scammer sources and rebuilds the index.
type Refresher struct {
	index   *Index
	client  *http.Client
	sources []source
}

// NewRefresher wires a refresher for the CAS export CSV and the lols.bot
// scammer list.
func NewRefresher(index *Index, exportURL, lolsURL string, timeout time.Duration) *Refresher {
	return &Refresher{
		index:  index,
		client: &http.Client{Timeout: timeout},
		sources: []source{
			{name: SourceExport, url: exportURL, parse: parseExportCSV},
			{name: SourceLols, url: lolsURL, parse: parseLines},
		},
	}
}

// Refresh fetches every source, merges the parsed IDs and swaps the index.
// A single failing source is skipped with a warning; only when every source
// fails is the previous index kept and an error returned.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	result := RefreshResult{SourceCounts: make(map[string]int)}
	merged := make(map[int64]Entry)

	for _, src := range r.sources {
		entries, skipped, err := r.fetch(ctx, src)
		if err != nil {
			log.Printf("WARN: Blacklist source %s failed: %v", src.name, err)
			result.Failed = append(result.Failed, src.name)
			continue
		}
		result.SourceCounts[src.name] = len(entries)
		result.Skipped += skipped
		for id, entry := range entries {
			if _, ok := merged[id]; !ok {
				merged[id] = entry
			}
		}
	}

	if len(result.Failed) == len(r.sources) {
		return result, fmt.Errorf("all %d blacklist sources failed", len(r.sources))
	}

	r.index.ReplaceAll(merged)
	result.Total = len(merged)
	log.Printf("Blacklist refreshed: total=%d export=%d lols=%d skipped=%d",
		result.Total, result.SourceCounts[SourceExport], result.SourceCounts[SourceLols], result.Skipped)
	return result, nil
}

func (r *Refresher) fetch(ctx context.Context, src source) (map[int64]Entry, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	entries, skipped := src.parse(resp.Body)
	return entries, skipped, nil
}

// parseExportCSV reads the CAS export. The file may carry a header row and
// extra columns; only the first column matters. Malformed lines are counted
// and skipped.
func parseExportCSV(r io.Reader) (map[int64]Entry, int) {
	out := make(map[int64]Entry)
	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "user") && strings.Contains(lower, "id") {
			continue
		}
		first, _, _ := strings.Cut(line, ",")
		id, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
		if err != nil {
			skipped++
			continue
		}
		out[id] = Entry{Source: SourceExport}
	}
	return out, skipped
}

// parseLines reads a plain one-ID-per-line list.
func parseLines(r io.Reader) (map[int64]Entry, int) {
	out := make(map[int64]Entry)
	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			skipped++
			continue
		}
		out[id] = Entry{Source: SourceLols}
	}
	return out, skipped
}

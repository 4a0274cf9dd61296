// Package cli parses the flags for the five pipeline jobs (fetch,
// process-snapshots, render-diffs, index-web-updates, archive) into plain
// argument structs. cmd/moku-wst dispatches on the first positional
// argument and hands the remainder to the matching parser.
package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitCSVInt64(s string) ([]int64, error) {
	raw := splitCSV(s)
	out := make([]int64, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", r, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitCSVInt(s string) ([]int, error) {
	raw := splitCSV(s)
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.Atoi(r)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", r, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// FetchArgs holds the parsed flags for the `fetch` job (C4).
type FetchArgs struct {
	Frequency      string
	Shard          int
	MaxShards      int
	BatchSize      int
	IDs            []int64
	URLs           []string
	IncludeClients []int
	ExcludeClients []int
}

func ParseFetchArgs(args []string) (*FetchArgs, error) {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	frequency := fs.String("frequency", "24h", "Source frequency to select: 6h|12h|24h")
	shard := fs.Int("shard", 0, "This worker's shard index")
	maxShards := fs.Int("max-shards", 1, "Total number of shards")
	batchSize := fs.Int("batch-size", 50, "Maximum sources to fetch in this run")
	ids := fs.String("ids", "", "Comma-separated source ids to restrict to")
	urls := fs.String("urls", "", "Comma-separated source URLs to restrict to")
	includeClients := fs.String("include-clients", "", "Comma-separated client ids to restrict to")
	excludeClients := fs.String("exclude-clients", "", "Comma-separated client ids to exclude")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch *frequency {
	case "6h", "12h", "24h":
	default:
		return nil, fmt.Errorf("invalid -frequency %q: must be 6h, 12h, or 24h", *frequency)
	}

	idList, err := splitCSVInt64(*ids)
	if err != nil {
		return nil, err
	}
	includeList, err := splitCSVInt(*includeClients)
	if err != nil {
		return nil, err
	}
	excludeList, err := splitCSVInt(*excludeClients)
	if err != nil {
		return nil, err
	}

	return &FetchArgs{
		Frequency:      *frequency,
		Shard:          *shard,
		MaxShards:      *maxShards,
		BatchSize:      *batchSize,
		IDs:            idList,
		URLs:           splitCSV(*urls),
		IncludeClients: includeList,
		ExcludeClients: excludeList,
	}, nil
}

// ProcessSnapshotsArgs holds the parsed flags for the `process-snapshots`
// job (C5/C6/C7: tree matching, diff generation, summary extraction).
type ProcessSnapshotsArgs struct {
	RatioMode string
	Threshold float64
	SourceIDs []int64
	BatchSize int
	Shard     int
	MaxShards int
}

func ParseProcessSnapshotsArgs(args []string) (*ProcessSnapshotsArgs, error) {
	fs := flag.NewFlagSet("process-snapshots", flag.ContinueOnError)
	ratioMode := fs.String("ratio-mode", "accurate", "Tag-text granularity: accurate|fast|faster (fast/faster treat p/h1-h5 as text leaves)")
	threshold := fs.Float64("threshold", 0.5, "Minimum node match ratio F")
	sourceIDs := fs.String("source-ids", "", "Comma-separated source ids to restrict to")
	batchSize := fs.Int("batch-size", 20, "Maximum draft snapshots to process in this run")
	shard := fs.Int("shard", 0, "This worker's shard index")
	maxShards := fs.Int("max-shards", 1, "Total number of shards")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch *ratioMode {
	case "accurate", "fast", "faster":
	default:
		return nil, fmt.Errorf("invalid -ratio-mode %q: must be accurate, fast, or faster", *ratioMode)
	}
	if *threshold < 0 || *threshold > 1 {
		return nil, fmt.Errorf("invalid -threshold %v: must be in [0,1]", *threshold)
	}

	ids, err := splitCSVInt64(*sourceIDs)
	if err != nil {
		return nil, err
	}

	return &ProcessSnapshotsArgs{
		RatioMode: *ratioMode,
		Threshold: *threshold,
		SourceIDs: ids,
		BatchSize: *batchSize,
		Shard:     *shard,
		MaxShards: *maxShards,
	}, nil
}

// RenderDiffsArgs holds the parsed flags for the `render-diffs` job (C8).
// The job applies only DurationHours and BatchSize, and uses Shard as part
// of its lease key; NewSnapshotIDs, Failed, FromDate, ToDate and MaxShards
// are parsed and validated but do not change which rows are rendered.
type RenderDiffsArgs struct {
	NewSnapshotIDs []int64
	Failed         bool
	FromDate       *time.Time
	ToDate         *time.Time
	DurationHours  int
	BatchSize      int
	Shard          int
	MaxShards      int
}

func ParseRenderDiffsArgs(args []string) (*RenderDiffsArgs, error) {
	fs := flag.NewFlagSet("render-diffs", flag.ContinueOnError)
	newSnapshotIDs := fs.String("new-snapshot-ids", "", "Comma-separated new_snapshot_id values (validated; not applied as a filter)")
	failed := fs.Bool("failed", false, "Failed-row reprocessing switch (parsed; the processed queue is rendered regardless)")
	fromDate := fs.String("from-date", "", "Lower creation date bound, RFC3339 or 2006-01-02 (validated; not applied as a filter)")
	toDate := fs.String("to-date", "", "Upper creation date bound, RFC3339 or 2006-01-02 (validated; not applied as a filter)")
	durationHours := fs.Int("duration-hours", 2, "Wall-clock timeout for this run, in hours")
	batchSize := fs.Int("batch-size", 20, "Maximum DiffHtml rows to render in this run")
	shard := fs.Int("shard", 0, "This worker's shard index")
	maxShards := fs.Int("max-shards", 1, "Total number of shards")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	ids, err := splitCSVInt64(*newSnapshotIDs)
	if err != nil {
		return nil, err
	}
	from, err := parseFlexibleDate(*fromDate)
	if err != nil {
		return nil, fmt.Errorf("invalid -from-date: %w", err)
	}
	to, err := parseFlexibleDate(*toDate)
	if err != nil {
		return nil, fmt.Errorf("invalid -to-date: %w", err)
	}

	return &RenderDiffsArgs{
		NewSnapshotIDs: ids,
		Failed:         *failed,
		FromDate:       from,
		ToDate:         to,
		DurationHours:  *durationHours,
		BatchSize:      *batchSize,
		Shard:          *shard,
		MaxShards:      *maxShards,
	}, nil
}

func parseFlexibleDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// IndexWebUpdatesArgs holds the parsed flags for the `index-web-updates`
// job (C9's curator-facing feed builder).
type IndexWebUpdatesArgs struct {
	Start   *time.Time
	End     *time.Time
	Days    int
	Minutes int
	Clients []int
	Store   string
}

func ParseIndexWebUpdatesArgs(args []string) (*IndexWebUpdatesArgs, error) {
	fs := flag.NewFlagSet("index-web-updates", flag.ContinueOnError)
	start := fs.String("start", "", "Window start (RFC3339 or 2006-01-02)")
	end := fs.String("end", "", "Window end (RFC3339 or 2006-01-02)")
	days := fs.Int("days", 0, "Window width in days, counted back from now (ignored if -start is set)")
	minutes := fs.Int("minutes", 0, "Window width in minutes, counted back from now (ignored if -start/-days are set)")
	clients := fs.String("clients", "", "Comma-separated client ids to restrict to")
	store := fs.String("store", "", "Target store selector; empty uses the default store")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	startT, err := parseFlexibleDate(*start)
	if err != nil {
		return nil, fmt.Errorf("invalid -start: %w", err)
	}
	endT, err := parseFlexibleDate(*end)
	if err != nil {
		return nil, fmt.Errorf("invalid -end: %w", err)
	}
	clientList, err := splitCSVInt(*clients)
	if err != nil {
		return nil, err
	}

	return &IndexWebUpdatesArgs{
		Start:   startT,
		End:     endT,
		Days:    *days,
		Minutes: *minutes,
		Clients: clientList,
		Store:   *store,
	}, nil
}

// ArchiveArgs holds the parsed flags for the `archive` job (C10).
type ArchiveArgs struct {
	Delete   bool
	Duration int
	Max      int
}

func ParseArchiveArgs(args []string) (*ArchiveArgs, error) {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	del := fs.Bool("delete", false, "Actually delete; default is dry-run")
	duration := fs.Int("duration", 9, "Retention window in months")
	max := fs.Int("max", 200, "Maximum DiffContent rows to archive in this run")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *duration <= 0 {
		return nil, fmt.Errorf("invalid -duration %d: must be positive", *duration)
	}
	if *max <= 0 {
		return nil, fmt.Errorf("invalid -max %d: must be positive", *max)
	}

	return &ArchiveArgs{Delete: *del, Duration: *duration, Max: *max}, nil
}

// Package notify provides the fetch scheduler's only built-in
// interfaces.Notifier: one that logs the aggregated error report rather
// than delivering it anywhere external (email delivery is out of scope,
// per spec.md's Non-goals).
package notify

import "github.com/raysh454/moku-wst/internal/interfaces"

// LogNotifier reports fetch-run errors through a Logger at warn level.
type LogNotifier struct {
	Logger interfaces.Logger
}

// Report logs report's headline counters and per-prefix error buckets.
func (n *LogNotifier) Report(report interfaces.FetchRunReport) {
	if n.Logger == nil {
		return
	}
	n.Logger.Warn("fetch: run had errors",
		interfaces.Field{Key: "frequency", Value: report.Frequency},
		interfaces.Field{Key: "shard", Value: report.Shard},
		interfaces.Field{Key: "sources_selected", Value: report.SourcesSelected},
		interfaces.Field{Key: "broken", Value: report.Broken},
		interfaces.Field{Key: "errors_by_prefix", Value: report.ErrorsByPrefix})
}

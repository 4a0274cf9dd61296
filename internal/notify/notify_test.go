package notify

import (
	"testing"

	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/testutil"
)

func TestReportLogsAtWarnWithCounters(t *testing.T) {
	logger := &testutil.DummyLogger{}
	n := &LogNotifier{Logger: logger}

	n.Report(interfaces.FetchRunReport{
		Frequency:       "24h",
		Shard:           0,
		SourcesSelected: 10,
		Broken:          2,
		ErrorsByPrefix:  map[string]int{"fetch: goto": 3},
	})

	if len(logger.Warns) != 1 {
		t.Fatalf("expected one warn-level log, got %d", len(logger.Warns))
	}
}

func TestReportIsANoOpWithoutALogger(t *testing.T) {
	n := &LogNotifier{}
	n.Report(interfaces.FetchRunReport{Frequency: "24h"})
}

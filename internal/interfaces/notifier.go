package interfaces

// FetchRunReport summarizes a fetch-scheduler tick: errors bucketed by
// message prefix, plus headline counters.
type FetchRunReport struct {
	Frequency       string
	Shard           int
	SourcesSelected int
	NoChange        int
	Captured        int
	Broken          int
	ErrorsByPrefix  map[string]int
}

// Notifier receives the aggregated error report a fetch run produces when
// at least one error occurred. Email delivery is out of scope for this
// core (see Non-goals); the only implementation it ships with logs the
// report.
type Notifier interface {
	Report(report FetchRunReport)
}

package cli

import "testing"

func TestParseFetchArgsDefaults(t *testing.T) {
	got, err := ParseFetchArgs(nil)
	if err != nil {
		t.Fatalf("ParseFetchArgs: %v", err)
	}
	if got.Frequency != "24h" || got.BatchSize != 50 || got.MaxShards != 1 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestParseFetchArgsRejectsInvalidFrequency(t *testing.T) {
	if _, err := ParseFetchArgs([]string{"-frequency", "36h"}); err == nil {
		t.Fatalf("expected error for invalid frequency")
	}
}

func TestParseFetchArgsSplitsCSVLists(t *testing.T) {
	got, err := ParseFetchArgs([]string{"-ids", "1, 2,3", "-urls", "https://a.example.com, https://b.example.com"})
	if err != nil {
		t.Fatalf("ParseFetchArgs: %v", err)
	}
	if len(got.IDs) != 3 || got.IDs[0] != 1 || got.IDs[2] != 3 {
		t.Fatalf("IDs = %v, want [1 2 3]", got.IDs)
	}
	if len(got.URLs) != 2 || got.URLs[1] != "https://b.example.com" {
		t.Fatalf("URLs = %v", got.URLs)
	}
}

func TestParseFetchArgsRejectsMalformedID(t *testing.T) {
	if _, err := ParseFetchArgs([]string{"-ids", "abc"}); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}

func TestParseProcessSnapshotsArgsRejectsInvalidThreshold(t *testing.T) {
	if _, err := ParseProcessSnapshotsArgs([]string{"-threshold", "1.5"}); err == nil {
		t.Fatalf("expected error for threshold > 1")
	}
	if _, err := ParseProcessSnapshotsArgs([]string{"-threshold", "-0.1"}); err == nil {
		t.Fatalf("expected error for threshold < 0")
	}
}

func TestParseProcessSnapshotsArgsRejectsInvalidRatioMode(t *testing.T) {
	if _, err := ParseProcessSnapshotsArgs([]string{"-ratio-mode", "blazing"}); err == nil {
		t.Fatalf("expected error for invalid ratio mode")
	}
}

func TestParseRenderDiffsArgsParsesFlexibleDates(t *testing.T) {
	got, err := ParseRenderDiffsArgs([]string{"-from-date", "2026-01-15", "-to-date", "2026-02-01T12:00:00Z"})
	if err != nil {
		t.Fatalf("ParseRenderDiffsArgs: %v", err)
	}
	if got.FromDate == nil || got.FromDate.Year() != 2026 || got.FromDate.Month() != 1 || got.FromDate.Day() != 15 {
		t.Fatalf("FromDate = %v", got.FromDate)
	}
	if got.ToDate == nil || got.ToDate.Hour() != 12 {
		t.Fatalf("ToDate = %v", got.ToDate)
	}
}

func TestParseRenderDiffsArgsRejectsBadDate(t *testing.T) {
	if _, err := ParseRenderDiffsArgs([]string{"-from-date", "not-a-date"}); err == nil {
		t.Fatalf("expected error for malformed -from-date")
	}
}

func TestParseIndexWebUpdatesArgsDefaultsToEmptyWindow(t *testing.T) {
	got, err := ParseIndexWebUpdatesArgs(nil)
	if err != nil {
		t.Fatalf("ParseIndexWebUpdatesArgs: %v", err)
	}
	if got.Start != nil || got.End != nil || got.Days != 0 || got.Minutes != 0 {
		t.Fatalf("expected zero-value window by default, got %+v", got)
	}
}

func TestParseArchiveArgsRejectsNonPositiveDuration(t *testing.T) {
	if _, err := ParseArchiveArgs([]string{"-duration", "0"}); err == nil {
		t.Fatalf("expected error for -duration 0")
	}
	if _, err := ParseArchiveArgs([]string{"-max", "-1"}); err == nil {
		t.Fatalf("expected error for negative -max")
	}
}

func TestParseArchiveArgsDefaultsToDryRun(t *testing.T) {
	got, err := ParseArchiveArgs(nil)
	if err != nil {
		t.Fatalf("ParseArchiveArgs: %v", err)
	}
	if got.Delete {
		t.Fatalf("expected Delete=false by default (dry-run)")
	}
}

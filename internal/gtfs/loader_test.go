package gtfs

import (
	"strings"
	"testing"

	"github.com/yourorg/tokudoku/internal/models"
)

func TestBuildStopUpsert(t *testing.T) {
	query, args := buildStopUpsert([]models.Stop{
		{StopID: "oitabus_S1", Name: "大分駅前", Latitude: 33.2331, Longitude: 131.6064},
		{StopID: "oitabus_S2", Name: "中央町", Latitude: 33.2356, Longitude: 131.6091, ZoneID: "Z1"},
	})
	if !strings.HasPrefix(query, "INSERT INTO gtfs_stops ") {
		t.Errorf("unexpected query prefix: %s", query)
	}
	if !strings.Contains(query, "($1, $2, $3, $4, $5, $6, $7, $8), ($9, $10, $11, $12, $13, $14, $15, $16)") {
		t.Errorf("placeholder tuples wrong: %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (stop_id) DO UPDATE SET") {
		t.Errorf("missing upsert clause: %s", query)
	}
	if len(args) != 16 {
		t.Fatalf("expected 16 args, got %d", len(args))
	}
	if args[0] != "oitabus_S1" || args[8] != "oitabus_S2" {
		t.Errorf("arg order wrong: %v, %v", args[0], args[8])
	}
	// empty optionals become NULL, set ones keep their value
	if args[1] != nil {
		t.Errorf("empty stop_code should be nil, got %v", args[1])
	}
	if args[13] != "Z1" {
		t.Errorf("zone_id should round-trip, got %v", args[13])
	}
}

func TestBuildStopUpsertUpdatesEveryColumn(t *testing.T) {
	// re-importing the same stop_id must overwrite, not duplicate or keep
	// stale values
	query, _ := buildStopUpsert([]models.Stop{
		{StopID: "oitabus_S1", Name: "大分駅前", Latitude: 33.2331, Longitude: 131.6064},
	})
	for _, col := range []string{
		"stop_code", "stop_name", "stop_lat", "stop_lon",
		"zone_id", "location_type", "parent_station",
	} {
		if !strings.Contains(query, col+" = EXCLUDED."+col) {
			t.Errorf("column %s not updated on conflict: %s", col, query)
		}
	}
}

func TestTableWroteNothing(t *testing.T) {
	if !tableWroteNothing(TableResult{Batches: 2, FailedBatches: 2}) {
		t.Error("every batch failed: that is a failed load")
	}
	if tableWroteNothing(TableResult{}) {
		t.Error("an empty feed table is not a failure")
	}
	if tableWroteNothing(TableResult{Batches: 2, Rows: 700, FailedBatches: 1}) {
		t.Error("a partial load still counts as written")
	}
}

func TestBuildStopTimeInsertHasNoConflictClause(t *testing.T) {
	query, args := buildStopTimeInsert([]models.StopTime{
		{TripID: "oitabus_T1", ArrivalTime: "08:00:00", DepartureTime: "08:00:00", StopID: "oitabus_S1", StopSequence: 1},
	})
	if strings.Contains(query, "ON CONFLICT") {
		t.Errorf("stop_times insert must be plain: %s", query)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
}

func TestBuildCalendarUpsertArgs(t *testing.T) {
	_, args := buildCalendarUpsert([]models.Calendar{
		{ServiceID: "oitabus_svc1", Monday: true, StartDate: "20250101", EndDate: "20251231"},
	})
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}
	if args[1] != true || args[2] != false {
		t.Errorf("day flag args wrong: %v, %v", args[1], args[2])
	}
	if args[8] != "20250101" || args[9] != "20251231" {
		t.Errorf("date args wrong: %v, %v", args[8], args[9])
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("empty string should map to nil")
	}
	if nullable("x") != "x" {
		t.Error("non-empty string should pass through")
	}
}

func TestSuccessNotes(t *testing.T) {
	notes := SuccessNotes([]AgencyResult{
		{Name: "大分バス", Success: true},
		{Name: "大分交通", Success: false},
	})
	if notes != "成功: 大分バス / 失敗: 大分交通" {
		t.Errorf("got %q", notes)
	}
}

func TestSuccessNotesAllFailed(t *testing.T) {
	notes := SuccessNotes([]AgencyResult{{Name: "大分バス", Success: false}})
	if notes != "成功: なし / 失敗: 大分バス" {
		t.Errorf("got %q", notes)
	}
}

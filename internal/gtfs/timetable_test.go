package gtfs

import (
	"testing"
	"time"

	"github.com/yourorg/tokudoku/internal/models"
)

func weekRangeCalendar() models.Calendar {
	return models.Calendar{
		ServiceID: "oitabus_weekday",
		Monday:    true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
		StartDate: "20250101",
		EndDate:   "20251231",
	}
}

func TestServiceActiveOn(t *testing.T) {
	cal := weekRangeCalendar()
	monday := time.Date(2025, 1, 6, 10, 0, 0, 0, jst)
	if !serviceActiveOn(cal, monday) {
		t.Error("weekday service should run on a Monday inside the range")
	}
	saturday := time.Date(2025, 1, 4, 10, 0, 0, 0, jst)
	if serviceActiveOn(cal, saturday) {
		t.Error("weekday service must not run on Saturday")
	}
	beforeRange := time.Date(2024, 12, 30, 10, 0, 0, 0, jst) // a Monday
	if serviceActiveOn(cal, beforeRange) {
		t.Error("service must not run before start_date")
	}
	afterRange := time.Date(2026, 1, 5, 10, 0, 0, 0, jst) // a Monday
	if serviceActiveOn(cal, afterRange) {
		t.Error("service must not run after end_date")
	}
}

func TestServiceActiveOnOpenEndedDates(t *testing.T) {
	cal := models.Calendar{ServiceID: "svc", Sunday: true}
	sunday := time.Date(2025, 1, 5, 10, 0, 0, 0, jst)
	if !serviceActiveOn(cal, sunday) {
		t.Error("empty date bounds should not exclude the service")
	}
}

func TestActiveServicesFallback(t *testing.T) {
	referenced := []string{"svc1", "svc2"}
	monday := time.Date(2025, 1, 6, 10, 0, 0, 0, jst)

	// no calendar rows at all: every referenced service is treated as active
	active, fallback := activeServices(nil, referenced, monday)
	if !fallback {
		t.Error("expected fallback with no calendars")
	}
	if !active["svc1"] || !active["svc2"] {
		t.Errorf("fallback should activate everything: %v", active)
	}

	// calendars exist but none matches today: same fallback
	saturdayOnly := models.Calendar{ServiceID: "svc1", Saturday: true}
	active, fallback = activeServices([]models.Calendar{saturdayOnly}, referenced, monday)
	if !fallback {
		t.Error("expected fallback when no calendar matches")
	}
	if !active["svc2"] {
		t.Errorf("fallback should activate everything: %v", active)
	}
}

func TestActiveServicesNoFallbackWhenMatched(t *testing.T) {
	monday := time.Date(2025, 1, 6, 10, 0, 0, 0, jst)
	cals := []models.Calendar{
		weekRangeCalendar(),
		{ServiceID: "oitabus_holiday", Sunday: true, StartDate: "20250101", EndDate: "20251231"},
	}
	active, fallback := activeServices(cals, []string{"oitabus_weekday", "oitabus_holiday"}, monday)
	if fallback {
		t.Error("fallback must not trigger when a calendar matched")
	}
	if !active["oitabus_weekday"] || active["oitabus_holiday"] {
		t.Errorf("wrong active set: %v", active)
	}
}

func TestGroupDepartures(t *testing.T) {
	route1 := models.Route{RouteID: "oitabus_R1", ShortName: "G1"}
	route2 := models.Route{RouteID: "oitabus_R2", ShortName: "G2"}
	rows := []departureRow{
		{departureTime: "08:00:00", headsign: "大分駅", serviceID: "svc1", route: route1},
		{departureTime: "08:05:00", headsign: "パークプレイス", serviceID: "svc2", route: route2},
		{departureTime: "08:30:00", headsign: "大分駅", serviceID: "svc1", route: route1},
	}
	groups := groupDepartures(rows, map[string]bool{"svc1": true})
	if len(groups) != 1 {
		t.Fatalf("inactive service should be filtered, got %d groups", len(groups))
	}
	if groups[0].RouteID != "oitabus_R1" {
		t.Errorf("wrong route: %s", groups[0].RouteID)
	}
	if len(groups[0].Departures) != 2 {
		t.Fatalf("expected 2 departures, got %d", len(groups[0].Departures))
	}
	if groups[0].Departures[0].DepartureTime != "08:00:00" || groups[0].Departures[1].DepartureTime != "08:30:00" {
		t.Errorf("departure order lost: %+v", groups[0].Departures)
	}
}

func TestSortRouteGroupsUsesLongNameFallback(t *testing.T) {
	groups := []models.RouteTimetable{
		{RouteID: "r2", LongName: "べっぷ方面"}, // no short name
		{RouteID: "r1", ShortName: "あさひ線"},
	}
	sortRouteGroups(groups)
	if groups[0].RouteID != "r1" {
		t.Errorf("expected あさひ線 first, got %s", groups[0].RouteID)
	}
}

func TestReferencedServicesDedup(t *testing.T) {
	rows := []departureRow{
		{serviceID: "svc1"},
		{serviceID: "svc2"},
		{serviceID: "svc1"},
		{serviceID: ""},
	}
	got := referencedServices(rows)
	if len(got) != 2 || got[0] != "svc1" || got[1] != "svc2" {
		t.Errorf("got %v", got)
	}
}

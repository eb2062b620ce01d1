package config

import "testing"

func TestParseAgencies(t *testing.T) {
	data := []byte(`
agencies:
  - id: oitabus
    name: 大分バス
    feed_url: https://api.gtfs-data.jp/v2/organizations/oitabus/feeds/oitabus/files/feed.zip
`)
	agencies, err := ParseAgencies(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agencies) != 1 || agencies[0].ID != "oitabus" {
		t.Errorf("got %+v", agencies)
	}
}

func TestParseAgenciesMissingFeedURL(t *testing.T) {
	data := []byte(`
agencies:
  - id: oitabus
    name: 大分バス
`)
	if _, err := ParseAgencies(data); err == nil {
		t.Error("agency without feed_url must be rejected")
	}
}

func TestParseAgenciesEmptyList(t *testing.T) {
	if _, err := ParseAgencies([]byte("agencies: []\n")); err == nil {
		t.Error("empty registry must be rejected")
	}
}

func TestLoadAgenciesDefaults(t *testing.T) {
	agencies, err := LoadAgencies("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agencies) != 3 {
		t.Fatalf("expected the 3 built-in operators, got %d", len(agencies))
	}
	if agencies[0].ID != "oitabus" {
		t.Errorf("got %+v", agencies[0])
	}
}

func TestLoadAgenciesMissingFile(t *testing.T) {
	agencies, err := LoadAgencies("/nonexistent/agencies.yaml")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if len(agencies) != 3 {
		t.Errorf("expected defaults, got %d agencies", len(agencies))
	}
}

func TestFilterAgencies(t *testing.T) {
	all := []Agency{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, err := FilterAgencies(all, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("empty selection should return everything, got %d", len(got))
	}

	got, err = FilterAgencies(all, []string{"c", "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("got %+v", got)
	}

	if _, err := FilterAgencies(all, []string{"a", "typo"}); err == nil {
		t.Error("unknown id must be rejected")
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Agency describes one GTFS feed source. The same registry is shared by the
// import CLI and the HTTP trigger so the two paths can never drift.
type Agency struct {
	ID      string `yaml:"id" json:"id" validate:"required"`
	Name    string `yaml:"name" json:"name" validate:"required"`
	FeedURL string `yaml:"feed_url" json:"feed_url" validate:"required,url"`
}

type agencyFile struct {
	Agencies []Agency `yaml:"agencies" validate:"required,min=1,dive"`
}

// defaultAgencies covers the Oita bus operators published on gtfs-data.jp.
var defaultAgencies = []Agency{
	{
		ID:      "oitabus",
		Name:    "大分バス",
		FeedURL: "https://api.gtfs-data.jp/v2/organizations/oitabus/feeds/oitabus/files/feed.zip",
	},
	{
		ID:      "oitakotsu",
		Name:    "大分交通",
		FeedURL: "https://api.gtfs-data.jp/v2/organizations/oitakotsu/feeds/oitakotsu/files/feed.zip",
	},
	{
		ID:      "kamenoibus",
		Name:    "亀の井バス",
		FeedURL: "https://api.gtfs-data.jp/v2/organizations/kamenoibus/feeds/kamenoibus/files/feed.zip",
	},
}

// LoadAgencies reads the agency registry from a YAML file. An empty path or a
// missing file falls back to the built-in Oita registry; a file that exists
// but fails to parse or validate is an error (a broken registry should never
// silently shrink the import set).
func LoadAgencies(path string) ([]Agency, error) {
	if path == "" {
		return defaultAgencies, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultAgencies, nil
		}
		return nil, fmt.Errorf("config: read agencies %s: %w", path, err)
	}
	return ParseAgencies(data)
}

// ParseAgencies parses and validates a YAML agency registry.
func ParseAgencies(data []byte) ([]Agency, error) {
	var f agencyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse agencies: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("config: invalid agencies: %w", err)
	}
	return f.Agencies, nil
}

// FilterAgencies returns the agencies matching the requested IDs, in request
// order. An empty request selects every agency. Unknown IDs are
// reported so a typo in the trigger body is a 400 instead of a silent no-op.
func FilterAgencies(all []Agency, ids []string) ([]Agency, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]Agency, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	selected := make([]Agency, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("config: unknown agency %q", id)
		}
		selected = append(selected, a)
	}
	return selected, nil
}

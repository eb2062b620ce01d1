package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoordinateError は座標バリデーションのエラーを表す
type CoordinateError struct {
	Field   string
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseCoordinate parses a required query parameter into a finite float.
func ParseCoordinate(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &CoordinateError{Field: field, Message: "必須パラメータです"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &CoordinateError{Field: field, Message: "数値として解釈できません"}
	}
	return v, nil
}

// ValidateLatitude は緯度の範囲を検証する
func ValidateLatitude(lat float64, field string) error {
	if lat < -90 || lat > 90 {
		return &CoordinateError{Field: field, Message: "-90〜90の範囲で指定してください"}
	}
	return nil
}

// ValidateLongitude は経度の範囲を検証する
func ValidateLongitude(lng float64, field string) error {
	if lng < -180 || lng > 180 {
		return &CoordinateError{Field: field, Message: "-180〜180の範囲で指定してください"}
	}
	return nil
}

// BoundingBox is a map-viewport rectangle, bounds inclusive.
type BoundingBox struct {
	SwLat float64
	SwLng float64
	NeLat float64
	NeLng float64
}

// ParseBoundingBox parses and validates the four corner parameters. All four
// are required; the southwest corner must not exceed the northeast corner
// (viewports never wrap the antimeridian here).
func ParseBoundingBox(swLat, swLng, neLat, neLng string) (BoundingBox, error) {
	var box BoundingBox
	var err error
	if box.SwLat, err = ParseCoordinate("swLat", swLat); err != nil {
		return box, err
	}
	if box.SwLng, err = ParseCoordinate("swLng", swLng); err != nil {
		return box, err
	}
	if box.NeLat, err = ParseCoordinate("neLat", neLat); err != nil {
		return box, err
	}
	if box.NeLng, err = ParseCoordinate("neLng", neLng); err != nil {
		return box, err
	}
	for field, lat := range map[string]float64{"swLat": box.SwLat, "neLat": box.NeLat} {
		if err := ValidateLatitude(lat, field); err != nil {
			return box, err
		}
	}
	for field, lng := range map[string]float64{"swLng": box.SwLng, "neLng": box.NeLng} {
		if err := ValidateLongitude(lng, field); err != nil {
			return box, err
		}
	}
	if box.SwLat > box.NeLat {
		return box, &CoordinateError{Field: "swLat", Message: "neLat以下で指定してください"}
	}
	if box.SwLng > box.NeLng {
		return box, &CoordinateError{Field: "swLng", Message: "neLng以下で指定してください"}
	}
	return box, nil
}

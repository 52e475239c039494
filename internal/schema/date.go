package schema

import "time"

// asISO8601 recognizes time.Time values so stringifyNonJSONTypes can
// fold them to ISO-8601 ahead of the JSON round trip.
func asISO8601(v any) (string, bool) {
	t, ok := v.(time.Time)
	if !ok {
		return "", false
	}
	return t.UTC().Format(time.RFC3339Nano), true
}

package common

const (
	RedisStreamStoryEnrichment = "story.enrichment"

	RedisStreamGroup    = "enrichment-group"
	RedisStreamConsumer = "enrichment-consumer"

	// Dedup Store key prefixes. Values under these prefixes are memoized
	// results only; flushing them costs repeat external calls, not correctness.
	RedisKeyStorySeen = "story:seen:"
	RedisKeyGeocode   = "geocode:"

	// Marker stored under a geocode key when the geocoder returned zero
	// results, so common non-geographic phrases are not retried.
	GeocodeNotFoundMarker = "__not_found__"

	// Marker stored under a geocode key while one worker holds the populate
	// claim. Other workers seeing it wait for the claimed result instead of
	// calling the geocoder themselves.
	GeocodeInProgressMarker = "__in_progress__"
)

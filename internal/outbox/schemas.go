package outbox

import "example.com/stravasync/internal/events"

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityImported: {Schema: events.ActivityChangedSchema},
	events.TypeActivityUpdated:  {Schema: events.ActivityChangedSchema},
}

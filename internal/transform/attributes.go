package transform

import (
	"github.com/harwoodlabs/meterbridge/internal/meter"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
)

// attributesFor builds a record's attribute set from a meter ID: one
// entry per tag, plus description and unit when present.
func attributesFor(id meter.ID) telemetry.Attributes {
	attrs := make(telemetry.Attributes, len(id.Tags)+2)
	for _, tag := range id.Tags {
		attrs[tag.Key] = tag.Value
	}
	if id.Description != "" {
		attrs["description"] = id.Description
	}
	if id.Unit != "" {
		attrs["unit"] = id.Unit
	}
	return attrs
}

// Package model resolves what a feature needs from a language model to a
// concrete endpoint. Features ask for a capability ("insights", "pitch") and
// the registry answers with an ordered fallback chain of endpoints.
package model

// Capability is a semantic class of generation work.
type Capability string

const (
	// CapabilityInsights produces short market updates for a project feed.
	CapabilityInsights Capability = "insights"

	// CapabilityPitch writes persuasive long-form text such as elevator pitches.
	CapabilityPitch Capability = "pitch"

	// CapabilityResearch answers structured lookup questions (people, companies)
	// and is expected to return JSON.
	CapabilityResearch Capability = "research"

	// CapabilityFast is for cheap, quick responses.
	CapabilityFast Capability = "fast"
)

// FeatureCapabilities maps product features to the capability they use when
// configuration does not name one.
var FeatureCapabilities = map[string]Capability{
	"insight-backfill": CapabilityInsights,
	"elevator-pitch":   CapabilityPitch,
	"connections":      CapabilityResearch,
}

// CapabilityForFeature returns the default capability for a feature, or
// CapabilityFast for unknown features.
func CapabilityForFeature(feature string) Capability {
	if c, ok := FeatureCapabilities[feature]; ok {
		return c
	}
	return CapabilityFast
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityInsights, CapabilityPitch, CapabilityResearch, CapabilityFast:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts s to a Capability, returning empty for unknown
// values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}

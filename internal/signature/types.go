package signature

import (
	"slices"
	"strings"
)

// PatternKind says which device attribute a pattern is matched against.
type PatternKind string

const (
	AddressSubstring       PatternKind = "address_substring"
	ClassPattern           PatternKind = "class_pattern"
	ManufacturerIDPattern  PatternKind = "manufacturer_id_pattern"
	ServiceUUIDPattern     PatternKind = "service_uuid_pattern"
	PlatformVersionPattern PatternKind = "platform_version_pattern"
)

// Pool separates address patterns by the transport they apply to.
type Pool string

const (
	PoolClassic       Pool = "classic"
	PoolAdvertisement Pool = "advertisement"
	PoolPlatform      Pool = "platform"
)

// Entry is one pattern-to-tags mapping.
type Entry struct {
	Kind        PatternKind
	Pool        Pool
	Platform    string // set for PlatformVersionPattern only
	Pattern     string
	Tags        []string
	Description string
}

// Exploit describes one entry of the exploit document.
type Exploit struct {
	Name        string   `json:"-"`
	Description string   `json:"description"`
	Category    string   `json:"type"`
	Requires    []string `json:"requires"`
}

// Override allow-lists exploits for devices whose address contains Pattern.
type Override struct {
	Pattern  string
	Exploits []string
}

// NormalizeTags returns tags de-duplicated and sorted. Empty strings are dropped.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Union merges any number of tag sets into one normalized set.
func Union(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return NormalizeTags(all)
}

package signature

import (
	"fmt"
	"slices"
	"strings"
)

type poolKey struct {
	kind PatternKind
	pool Pool
}

// compiled is an Entry with its pattern lower-cased once at build time.
type compiled struct {
	pattern string
	tags    []string
}

// Database is the immutable, process-wide signature store.
type Database struct {
	pools     map[poolKey][]compiled
	platforms map[string][]compiled
	exploits  map[string]Exploit
	overrides []Override
	size      int
}

// New builds a Database from decoded entries. Inputs are copied.
func New(entries []Entry, exploits map[string]Exploit, overrides []Override) *Database {
	db := &Database{
		pools:     make(map[poolKey][]compiled),
		platforms: make(map[string][]compiled),
		exploits:  make(map[string]Exploit, len(exploits)),
		size:      len(entries),
	}

	for _, e := range entries {
		c := compiled{pattern: strings.ToLower(e.Pattern), tags: NormalizeTags(e.Tags)}
		if e.Kind == PlatformVersionPattern {
			name := strings.ToLower(e.Platform)
			db.platforms[name] = append(db.platforms[name], c)
			continue
		}
		key := poolKey{kind: e.Kind, pool: e.Pool}
		db.pools[key] = append(db.pools[key], c)
	}

	for name, e := range exploits {
		e.Requires = slices.Clone(e.Requires)
		db.exploits[name] = e
	}

	db.overrides = make([]Override, len(overrides))
	for i, o := range overrides {
		db.overrides[i] = Override{Pattern: strings.ToLower(o.Pattern), Exploits: slices.Clone(o.Exploits)}
	}

	return db
}

// Empty returns a Database with no signatures.
func Empty() *Database {
	return New(nil, nil, nil)
}

// Len returns the number of pattern entries.
func (db *Database) Len() int {
	return db.size
}

// ExploitCount returns the number of catalogued exploits.
func (db *Database) ExploitCount() int {
	return len(db.exploits)
}

// Exploit returns the catalogue entry for name.
func (db *Database) Exploit(name string) (Exploit, bool) {
	e, ok := db.exploits[name]
	if !ok {
		return Exploit{}, false
	}
	e.Requires = slices.Clone(e.Requires)
	return e, true
}

// Correlator maps device identifiers to signature tags.
// Every method is pure with respect to the database.
type Correlator struct {
	db *Database
}

// NewCorrelator creates a Correlator over db. A nil db behaves as Empty().
func NewCorrelator(db *Database) *Correlator {
	if db == nil {
		db = Empty()
	}
	return &Correlator{db: db}
}

// Database returns the underlying database.
func (c *Correlator) Database() *Database {
	return c.db
}

// MatchClassic tags a classic-transport device by address substring and,
// when class is known, by its Class of Device rendered as six hex digits.
func (c *Correlator) MatchClassic(address string, class *uint32) []string {
	var tags []string
	tags = c.matchPool(tags, poolKey{AddressSubstring, PoolClassic}, address)
	if class != nil {
		tags = c.matchPool(tags, poolKey{ClassPattern, PoolClassic}, FormatClass(*class))
	}
	return NormalizeTags(tags)
}

// MatchAdvertisement tags an advertisement-transport device by address,
// manufacturer ids (four hex digits) and advertised service UUIDs.
func (c *Correlator) MatchAdvertisement(address string, manufacturerData map[uint16][]byte, services []string) []string {
	var tags []string
	tags = c.matchPool(tags, poolKey{AddressSubstring, PoolAdvertisement}, address)
	for id := range manufacturerData {
		tags = c.matchPool(tags, poolKey{ManufacturerIDPattern, PoolAdvertisement}, FormatManufacturerID(id))
	}
	for _, uuid := range services {
		tags = c.matchPool(tags, poolKey{ServiceUUIDPattern, PoolAdvertisement}, uuid)
	}
	return NormalizeTags(tags)
}

// MatchPlatform tags a platform/version pair. Unknown platforms yield an
// empty set.
func (c *Correlator) MatchPlatform(platform, version string) []string {
	patterns := c.db.platforms[strings.ToLower(platform)]
	v := strings.ToLower(version)

	var tags []string
	for _, p := range patterns {
		if strings.Contains(v, p.pattern) {
			tags = append(tags, p.tags...)
		}
	}
	return NormalizeTags(tags)
}

// MatchExploitCompat reports whether exploit applies to address. The result
// is {exploit} when compatible and empty otherwise.
//
// A per-device allow-list entry short-circuits to compatible. Otherwise any
// catalogued exploit is reported compatible, whether or not it declares
// requirements: requirements are not evaluated against the device, so this
// result must not be used as a gate.
func (c *Correlator) MatchExploitCompat(address, exploit string) []string {
	addr := strings.ToLower(address)
	for _, o := range c.db.overrides {
		if strings.Contains(addr, o.Pattern) && slices.Contains(o.Exploits, exploit) {
			return []string{exploit}
		}
	}

	if _, ok := c.db.exploits[exploit]; !ok {
		return []string{}
	}
	return []string{exploit}
}

func (c *Correlator) matchPool(tags []string, key poolKey, value string) []string {
	v := strings.ToLower(value)
	for _, p := range c.db.pools[key] {
		if strings.Contains(v, p.pattern) {
			tags = append(tags, p.tags...)
		}
	}
	return tags
}

// FormatClass renders a Class of Device as six lowercase hex digits.
func FormatClass(class uint32) string {
	return fmt.Sprintf("%06x", class&0xffffff)
}

// FormatManufacturerID renders a company identifier as four lowercase hex digits.
func FormatManufacturerID(id uint16) string {
	return fmt.Sprintf("%04x", id)
}

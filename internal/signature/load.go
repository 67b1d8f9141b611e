package signature

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemaOnce    sync.Once
	vulnSchema    *jsonschema.Schema
	exploitSchema *jsonschema.Schema
	schemaErr     error
)

func compileSchemas() error {
	schemaOnce.Do(func() {
		vulnSchema, schemaErr = compileSchema("schema/vulnerabilities.schema.json")
		if schemaErr != nil {
			return
		}
		exploitSchema, schemaErr = compileSchema("schema/exploits.schema.json")
	})
	return schemaErr
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}
	return schema, nil
}

// validate checks a decoded document against schema.
func validate(schema *jsonschema.Schema, data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	result := schema.Validate(doc)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s", ErrSchemaViolation, result.Error())
	}
	return nil
}

type patternDoc struct {
	Vulnerabilities []string `json:"vulnerabilities"`
	Description     string   `json:"description"`
}

type vulnerabilityDoc struct {
	Classic         map[string]patternDoc            `json:"classic"`
	ClassPatterns   map[string]patternDoc            `json:"class_patterns"`
	BLE             map[string]patternDoc            `json:"ble"`
	BLEManufacturer map[string]patternDoc            `json:"ble_manufacturer"`
	BLEServices     map[string]patternDoc            `json:"ble_services"`
	Platforms       map[string]map[string]patternDoc `json:"platforms"`
}

type exploitDoc struct {
	Exploits       map[string]Exploit  `json:"exploits"`
	DeviceExploits map[string][]string `json:"device_exploits"`
}

// ParseVulnerabilities validates and decodes a vulnerability document.
func ParseVulnerabilities(data []byte) ([]Entry, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	if err := validate(vulnSchema, data); err != nil {
		return nil, err
	}

	var doc vulnerabilityDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding vulnerabilities: %w", err)
	}

	var entries []Entry
	entries = appendPool(entries, doc.Classic, AddressSubstring, PoolClassic, "")
	entries = appendPool(entries, doc.ClassPatterns, ClassPattern, PoolClassic, "")
	entries = appendPool(entries, doc.BLE, AddressSubstring, PoolAdvertisement, "")
	entries = appendPool(entries, doc.BLEManufacturer, ManufacturerIDPattern, PoolAdvertisement, "")
	entries = appendPool(entries, doc.BLEServices, ServiceUUIDPattern, PoolAdvertisement, "")

	platforms := make([]string, 0, len(doc.Platforms))
	for name := range doc.Platforms {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	for _, name := range platforms {
		entries = appendPool(entries, doc.Platforms[name], PlatformVersionPattern, PoolPlatform, strings.ToLower(name))
	}

	return entries, nil
}

func appendPool(entries []Entry, pool map[string]patternDoc, kind PatternKind, p Pool, platform string) []Entry {
	patterns := make([]string, 0, len(pool))
	for pattern := range pool {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		doc := pool[pattern]
		entries = append(entries, Entry{
			Kind:        kind,
			Pool:        p,
			Platform:    platform,
			Pattern:     pattern,
			Tags:        NormalizeTags(doc.Vulnerabilities),
			Description: doc.Description,
		})
	}
	return entries
}

// ParseExploits validates and decodes an exploit document.
func ParseExploits(data []byte) (map[string]Exploit, []Override, error) {
	if err := compileSchemas(); err != nil {
		return nil, nil, err
	}
	if err := validate(exploitSchema, data); err != nil {
		return nil, nil, err
	}

	var doc exploitDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding exploits: %w", err)
	}

	exploits := make(map[string]Exploit, len(doc.Exploits))
	for name, e := range doc.Exploits {
		e.Name = name
		exploits[name] = e
	}

	overrides := make([]Override, 0, len(doc.DeviceExploits))
	for pattern, names := range doc.DeviceExploits {
		overrides = append(overrides, Override{Pattern: pattern, Exploits: names})
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].Pattern < overrides[j].Pattern })

	return exploits, overrides, nil
}

// Load reads both signature documents. A document that cannot be read,
// parsed or validated leaves its half of the database empty; the returned
// Database is always usable and the error (wrapping ErrDatabaseUnavailable)
// is for logging only.
func Load(vulnerabilitiesPath, exploitsPath string) (*Database, error) {
	var errs []error

	var entries []Entry
	if data, err := os.ReadFile(vulnerabilitiesPath); err != nil {
		errs = append(errs, fmt.Errorf("reading %s: %w", vulnerabilitiesPath, err))
	} else if entries, err = ParseVulnerabilities(data); err != nil {
		errs = append(errs, fmt.Errorf("loading %s: %w", vulnerabilitiesPath, err))
	}

	var (
		exploits  map[string]Exploit
		overrides []Override
	)
	if data, err := os.ReadFile(exploitsPath); err != nil {
		errs = append(errs, fmt.Errorf("reading %s: %w", exploitsPath, err))
	} else if exploits, overrides, err = ParseExploits(data); err != nil {
		errs = append(errs, fmt.Errorf("loading %s: %w", exploitsPath, err))
	}

	db := New(entries, exploits, overrides)
	if len(errs) > 0 {
		return db, fmt.Errorf("%w: %w", ErrDatabaseUnavailable, errors.Join(errs...))
	}
	return db, nil
}

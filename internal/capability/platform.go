package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Platform selects an executor variant.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformGeneric Platform = "generic"
)

// AllPlatforms lists every variant in routing order.
var AllPlatforms = []Platform{PlatformAndroid, PlatformIOS, PlatformWindows, PlatformLinux, PlatformGeneric}

// ParsePlatform maps a case-insensitive name to a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// PlatformResolver supplies the platform of a connected device.
type PlatformResolver interface {
	ResolvePlatform(ctx context.Context, address string) (Platform, error)
}

// StaticResolver is an operator-maintained address to platform table.
// Addresses with no entry resolve to PlatformGeneric.
type StaticResolver struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{platforms: make(map[string]Platform)}
}

// Set records the platform for address.
func (r *StaticResolver) Set(address string, p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[strings.ToUpper(strings.TrimSpace(address))] = p
}

// ResolvePlatform implements PlatformResolver.
func (r *StaticResolver) ResolvePlatform(_ context.Context, address string) (Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.platforms[strings.ToUpper(strings.TrimSpace(address))]; ok {
		return p, nil
	}
	return PlatformGeneric, nil
}

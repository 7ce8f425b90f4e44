package domain

import (
	"fmt"
	"sort"
)

// Platform is a closed enum of supported social media platforms.
// Adding a platform means adding a constant here plus a poster
// implementation; free-form platform strings are rejected at the boundary.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// Content length limits enforced by each platform.
const (
	facebookMaxContentLength  = 63206
	instagramMaxContentLength = 2200
	twitterMaxContentLength   = 280
)

// AllPlatforms returns the supported platforms in stable order.
func AllPlatforms() []Platform {
	return []Platform{PlatformFacebook, PlatformInstagram, PlatformTwitter}
}

// ParsePlatform converts a string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformFacebook, PlatformInstagram, PlatformTwitter:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformTwitter:
		return true
	}
	return false
}

// RequiresAsset reports whether the platform refuses text-only posts.
func (p Platform) RequiresAsset() bool {
	return p == PlatformInstagram
}

// MaxContentLength returns the platform's content length limit in runes.
func (p Platform) MaxContentLength() int {
	switch p {
	case PlatformFacebook:
		return facebookMaxContentLength
	case PlatformInstagram:
		return instagramMaxContentLength
	case PlatformTwitter:
		return twitterMaxContentLength
	default:
		return 0
	}
}

// NormalizePlatforms parses, deduplicates and sorts a requested platform
// list. An empty result is rejected so every job targets at least one
// platform.
func NormalizePlatforms(names []string) ([]Platform, error) {
	seen := make(map[Platform]struct{}, len(names))
	platforms := make([]Platform, 0, len(names))
	for _, name := range names {
		p, err := ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidPublishJob)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms, nil
}

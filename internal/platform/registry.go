package platform

import (
	"fmt"

	"github.com/jonesrussell/whisper-vault/internal/config"
	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// Registry maps each supported platform to its poster. The set is closed:
// lookups for platforms outside the enum fail loudly instead of silently
// skipping.
type Registry struct {
	posters map[domain.Platform]Poster
}

// NewRegistry builds posters for every supported platform from the
// configured credentials. Unconfigured platforms still get a poster; it
// reports unavailable at post time so the condition shows up in job
// sub-results instead of disappearing at startup.
func NewRegistry(creds config.PlatformCredentials) *Registry {
	return &Registry{
		posters: map[domain.Platform]Poster{
			domain.PlatformFacebook:  NewFacebookPoster(creds.Facebook),
			domain.PlatformInstagram: NewInstagramPoster(creds.Instagram),
			domain.PlatformTwitter:   NewTwitterPoster(creds.Twitter),
		},
	}
}

// NewRegistryWithPosters builds a registry from explicit posters, for tests
// and alternative wiring.
func NewRegistryWithPosters(posters ...Poster) *Registry {
	m := make(map[domain.Platform]Poster, len(posters))
	for _, p := range posters {
		m[p.Platform()] = p
	}
	return &Registry{posters: m}
}

// Get returns the poster for a platform.
func (r *Registry) Get(p domain.Platform) (Poster, error) {
	poster, ok := r.posters[p]
	if !ok {
		return nil, fmt.Errorf("%w: no poster registered for %q", domain.ErrUnknownPlatform, p)
	}
	return poster, nil
}

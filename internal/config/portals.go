package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultProviderPortals is the closed set of portals served by native
// (non-browser-automation) appliers. Anything outside the set routes to the
// browser-automation fallback.
var defaultProviderPortals = []string{
	"workday",
	"greenhouse",
	"smartrecruiters",
	"dice",
	"applytojob",
	"lever",
	"workable",
	"bamboohr",
	"breezyhr",
	"infojobs",
	"infojobs_net",
	"totaljobs",
}

type portalsFile struct {
	ProviderPortals []string `yaml:"provider_portals"`
}

// ProviderPortals returns the provider portal set, lowercased. When path is
// empty the compiled-in default applies; otherwise the YAML file at path
// replaces it wholesale.
func ProviderPortals(path string) (map[string]struct{}, error) {
	portals := defaultProviderPortals
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("op=config.portals read: %w", err)
		}
		var f portalsFile
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("op=config.portals parse: %w", err)
		}
		if len(f.ProviderPortals) == 0 {
			return nil, fmt.Errorf("op=config.portals: %s lists no provider_portals", path)
		}
		portals = f.ProviderPortals
	}
	set := make(map[string]struct{}, len(portals))
	for _, p := range portals {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return set, nil
}

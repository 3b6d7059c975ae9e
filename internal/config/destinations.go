package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sumire/autopost/internal/automation"
	"github.com/sumire/autopost/internal/domain"
)

// destinationsFile is the YAML layout of DESTINATIONS_FILE:
//
//	destinations:
//	  forum:
//	    write_button: a.btn_write
//	  other:
//	    base: forum
//	    title_input: input#title
type destinationsFile struct {
	Destinations map[string]destinationEntry `yaml:"destinations"`
}

type destinationEntry struct {
	Base    string
	Profile automation.Profile
	// keys holds every field the entry names, including those set to ""
	keys []string
}

func (e *destinationEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Base               string `yaml:"base"`
		automation.Profile `yaml:",inline"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.Base, e.Profile = raw.Base, raw.Profile
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			e.keys = append(e.keys, node.Content[i].Value)
		}
	}
	return nil
}

// LoadDestinations returns the destination profiles keyed by name. The
// compiled-in forum profile is always present; entries in path are merged
// over their base profile (the forum profile unless named otherwise). A key
// set to "" clears the inherited selector.
func LoadDestinations(path string) (map[string]automation.Profile, error) {
	profiles := map[string]automation.Profile{
		domain.DestinationForum: automation.DefaultForumProfile(),
	}
	if path == "" {
		return profiles, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations: %w", err)
	}
	var file destinationsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse destinations %s: %w", path, err)
	}

	// entries without a base, or based on forum, resolve first
	resolved := make(map[string]bool, len(file.Destinations))
	for len(resolved) < len(file.Destinations) {
		progress := false
		for name, entry := range file.Destinations {
			if resolved[name] {
				continue
			}
			base := entry.Base
			if base == "" || base == name {
				base = domain.DestinationForum
			}
			if _, declared := file.Destinations[base]; declared && !resolved[base] && base != name {
				continue
			}
			baseProfile, ok := profiles[base]
			if !ok {
				return nil, fmt.Errorf("destination %s: unknown base %q", name, entry.Base)
			}
			p := entry.Profile.Merge(baseProfile, entry.keys...)
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("destination %s: %w", name, err)
			}
			profiles[name] = p
			resolved[name] = true
			progress = true
		}
		if !progress {
			return nil, fmt.Errorf("destinations: base references form a cycle")
		}
	}
	return profiles, nil
}

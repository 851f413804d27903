package blocklist

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a named bundle of feed URLs, optionally including other presets.
type Preset struct {
	Name        string   `yaml:"name"`
	Group       string   `yaml:"group"`
	Description string   `yaml:"description"`
	Feeds       []string `yaml:"feeds"`
	Includes    []string `yaml:"includes"`
}

// PresetRegistry holds all built-in presets in definition order.
type PresetRegistry struct {
	presets []Preset
	index   map[string]int
}

// NewPresetRegistry returns the built-in preset registry.
func NewPresetRegistry() *PresetRegistry {
	var presets []Preset
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		panic("presets.yaml: " + err.Error())
	}

	index := make(map[string]int, len(presets))
	for i, p := range presets {
		index[p.Name] = i
	}

	return &PresetRegistry{presets: presets, index: index}
}

func (r *PresetRegistry) Get(name string) (Preset, bool) {
	i, ok := r.index[name]
	if !ok {
		return Preset{}, false
	}
	return r.presets[i], true
}

func (r *PresetRegistry) All() []Preset {
	return r.presets
}

// Expand resolves preset names into a deduplicated flat list of feed URLs,
// following Includes depth-first. Unknown names are skipped.
func (r *PresetRegistry) Expand(names []string) []string {
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var feeds []string

	var expand func(name string)
	expand = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		p, ok := r.Get(name)
		if !ok {
			return
		}
		for _, inc := range p.Includes {
			expand(inc)
		}
		for _, f := range p.Feeds {
			if !seen[f] {
				seen[f] = true
				feeds = append(feeds, f)
			}
		}
	}

	for _, name := range names {
		expand(name)
	}
	return feeds
}

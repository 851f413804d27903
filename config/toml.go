package config

import (
	"bytes"
	_ "embed"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultTOML []byte

// tomlParser implements koanf.Parser on top of BurntSushi/toml.
type tomlParser struct{}

func TOMLParser() *tomlParser {
	return &tomlParser{}
}

func (p *tomlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *tomlParser) Marshal(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

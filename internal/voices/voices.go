// Package voices holds the read-only catalog of voices the user can pick from.
package voices

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

//go:embed voices.toml
var builtinCatalog []byte

var (
	// ErrVoiceEmpty indicates that no voice was chosen.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrUnsupportedVoice indicates that the voice is not in the catalog.
	ErrUnsupportedVoice = errors.New("unsupported voice")
	// ErrEmptyCatalog indicates a catalog without any voice.
	ErrEmptyCatalog = errors.New("voice catalog is empty")
)

// Option is one catalog entry.
type Option struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// Catalog is an immutable, ordered list of voices.
type Catalog struct {
	options   []Option
	index     map[string]int
	defaultID string
}

type catalogFile struct {
	Default string   `toml:"default"`
	Voices  []Option `toml:"voice"`
}

// Builtin loads the catalog shipped with the binary.
func Builtin() (*Catalog, error) {
	return Parse(builtinCatalog)
}

// Parse reads a TOML catalog with a list of [[voice]] tables and an optional
// default id. Without a default the first voice is used.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile

	err := toml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}

	if len(file.Voices) == 0 {
		return nil, ErrEmptyCatalog
	}

	catalog := &Catalog{
		options: make([]Option, 0, len(file.Voices)),
		index:   make(map[string]int, len(file.Voices)),
	}

	for _, option := range file.Voices {
		if option.ID == "" {
			return nil, fmt.Errorf("failed to parse voice catalog: %w", ErrVoiceEmpty)
		}

		if _, dup := catalog.index[option.ID]; dup {
			return nil, fmt.Errorf("failed to parse voice catalog: duplicate voice %q", option.ID)
		}

		if option.Name == "" {
			option.Name = option.ID
		}

		catalog.index[option.ID] = len(catalog.options)
		catalog.options = append(catalog.options, option)
	}

	catalog.defaultID = catalog.options[0].ID
	if file.Default != "" {
		err = catalog.Validate(file.Default)
		if err != nil {
			return nil, fmt.Errorf("invalid default voice: %w", err)
		}

		catalog.defaultID = file.Default
	}

	return catalog, nil
}

// Options returns a copy of the catalog in display order.
func (c *Catalog) Options() []Option {
	out := make([]Option, len(c.options))
	copy(out, c.options)

	return out
}

// Default returns the id of the default voice.
func (c *Catalog) Default() string {
	return c.defaultID
}

// Lookup returns the option for id.
func (c *Catalog) Lookup(id string) (Option, bool) {
	i, ok := c.index[id]
	if !ok {
		return Option{}, false
	}

	return c.options[i], true
}

// Validate checks that id names a voice in the catalog.
func (c *Catalog) Validate(id string) error {
	if id == "" {
		return ErrVoiceEmpty
	}

	if _, ok := c.index[id]; !ok {
		return fmt.Errorf("%w: '%s'", ErrUnsupportedVoice, id)
	}

	return nil
}

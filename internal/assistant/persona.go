package assistant

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Persona names a preset of instruction text.
type Persona string

const (
	Friendly     Persona = "Friendly"
	Professional Persona = "Professional"
	Coach        Persona = "Coach"
)

// PersonaSpec is one catalog entry.
type PersonaSpec struct {
	Name         Persona `toml:"name"`
	Instructions string  `toml:"instructions"`
}

// Catalog is the ordered set of selectable personas.
type Catalog struct {
	Default  Persona       `toml:"default"`
	Personas []PersonaSpec `toml:"persona"`
}

//go:embed personas.toml
var embeddedCatalog []byte

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded persona catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file, or returns the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("persona catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates TOML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing personas: %w", err)
	}
	if len(c.Personas) == 0 {
		return nil, errors.New("no personas defined")
	}

	seen := make(map[Persona]bool, len(c.Personas))
	for i := range c.Personas {
		p := &c.Personas[i]
		p.Name = Persona(strings.TrimSpace(string(p.Name)))
		p.Instructions = strings.TrimSpace(p.Instructions)
		if p.Name == "" {
			return nil, fmt.Errorf("persona %d has no name", i+1)
		}
		if p.Instructions == "" {
			return nil, fmt.Errorf("persona %q has no instructions", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("persona %q defined twice", p.Name)
		}
		seen[p.Name] = true
	}

	if c.Default == "" {
		c.Default = c.Personas[0].Name
	} else if !seen[c.Default] {
		return nil, fmt.Errorf("default persona %q is not defined", c.Default)
	}
	return &c, nil
}

// Lookup finds a persona by exact name.
func (c *Catalog) Lookup(name string) (PersonaSpec, bool) {
	for _, p := range c.Personas {
		if string(p.Name) == name {
			return p, true
		}
	}
	return PersonaSpec{}, false
}

// Resolve is Lookup falling back to the default persona.
func (c *Catalog) Resolve(name string) PersonaSpec {
	if p, ok := c.Lookup(name); ok {
		return p
	}
	p, _ := c.Lookup(string(c.Default))
	return p
}

// Names lists personas in catalog order.
func (c *Catalog) Names() []Persona {
	out := make([]Persona, len(c.Personas))
	for i, p := range c.Personas {
		out[i] = p.Name
	}
	return out
}

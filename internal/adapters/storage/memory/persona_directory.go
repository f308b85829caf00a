package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

// PersonaDirectory is an in-memory domain.PersonaDirectory, optionally
// seeded from a YAML file.
type PersonaDirectory struct {
	mu       sync.RWMutex
	personas map[domain.PersonaID]*domain.Persona
}

func NewPersonaDirectory(personas ...domain.Persona) *PersonaDirectory {
	d := &PersonaDirectory{
		personas: make(map[domain.PersonaID]*domain.Persona),
	}
	for _, p := range personas {
		d.Put(p)
	}
	return d
}

// personaFile is the on-disk layout:
//
//	personas:
//	  - id: p1
//	    name: Dana
type personaFile struct {
	Personas []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"personas"`
}

// ReadPersonaFile parses a YAML seed file. Every entry needs an id and a name.
// Durable backends use it to seed their own persona tables.
func ReadPersonaFile(path string) ([]domain.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}

	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse personas file: %w", err)
	}

	out := make([]domain.Persona, 0, len(f.Personas))
	for i, p := range f.Personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("personas file: entry %d needs id and name", i)
		}
		out = append(out, domain.Persona{ID: domain.PersonaID(p.ID), Name: p.Name})
	}
	return out, nil
}

// LoadPersonaDirectory reads a YAML seed file.
func LoadPersonaDirectory(path string) (*PersonaDirectory, error) {
	personas, err := ReadPersonaFile(path)
	if err != nil {
		return nil, err
	}
	return NewPersonaDirectory(personas...), nil
}

// Put adds or replaces a persona.
func (d *PersonaDirectory) Put(p domain.Persona) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := p
	d.personas[p.ID] = &cp
}

func (d *PersonaDirectory) Resolve(ctx context.Context, id domain.PersonaID) (*domain.Persona, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.personas[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

package roster

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/jury/internal/domain/model"
)

// Seed is the YAML shape of a roster file: formations, assignments and
// national role holders. Single-process deployments load it at startup;
// production replaces the whole resolver with the federation's identity
// service.
type Seed struct {
	Formations  []model.Formation   `koanf:"formations"`
	Assignments []model.RosterEntry `koanf:"assignments"`
	National    map[string]string   `koanf:"national"`
}

// LoadSeed reads a roster seed from a YAML file.
func LoadSeed(path string) (*Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load roster file: %w", err)
	}
	var seed Seed
	if err := k.UnmarshalWithConf("", &seed, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode roster file: %w", err)
	}
	return &seed, nil
}

// Resolver builds an in-memory resolver from the seed.
func (s *Seed) Resolver() *InMemoryResolver {
	opts := []Option{
		WithFormations(s.Formations...),
		WithAssignments(s.Assignments...),
	}
	for userID, role := range s.National {
		opts = append(opts, WithNationalRole(userID, model.Role(role)))
	}
	return NewInMemoryResolver(opts...)
}

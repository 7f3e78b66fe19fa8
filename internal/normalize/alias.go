package normalize

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

//go:embed aliases.yaml
var defaultAliasesYAML []byte

// AliasFile is the on-disk form of an alias table.
type AliasFile struct {
	Version string         `yaml:"version"`
	Outlets []model.Outlet `yaml:"outlets"`
	Critics []model.Critic `yaml:"critics"`
}

// AliasTable is an immutable, versioned many-to-one mapping from name
// variants to canonical outlet and critic identifiers. Build one with
// NewAliasTable, ParseAliases or LoadAliases; it is safe for concurrent use.
type AliasTable struct {
	version string

	outlets     map[string]model.Outlet
	outletAlias map[string]string

	critics     map[string]model.Critic
	criticAlias map[string]string
}

// NewAliasTable indexes outlets and critics. Every alias is registered under
// both its folded and slugified form, and each canonical ID is registered as
// an alias of itself. An alias claimed by two different canonical IDs is an
// error.
func NewAliasTable(version string, outlets []model.Outlet, critics []model.Critic) (*AliasTable, error) {
	t := &AliasTable{
		version:     version,
		outlets:     make(map[string]model.Outlet, len(outlets)),
		outletAlias: make(map[string]string),
		critics:     make(map[string]model.Critic, len(critics)),
		criticAlias: make(map[string]string),
	}

	for _, o := range outlets {
		if o.ID == "" {
			return nil, eris.Errorf("normalize: outlet %q has no id", o.Name)
		}
		if _, dup := t.outlets[o.ID]; dup {
			return nil, eris.Errorf("normalize: duplicate outlet id %q", o.ID)
		}
		if o.Tier <= 0 {
			o.Tier = model.LowestTier
		}
		t.outlets[o.ID] = o
		names := append([]string{o.ID, o.Name}, o.Aliases...)
		if err := register(t.outletAlias, o.ID, names, "outlet"); err != nil {
			return nil, err
		}
	}

	for _, c := range critics {
		if c.ID == "" {
			return nil, eris.Errorf("normalize: critic %q has no id", c.Name)
		}
		if _, dup := t.critics[c.ID]; dup {
			return nil, eris.Errorf("normalize: duplicate critic id %q", c.ID)
		}
		t.critics[c.ID] = c
		names := append([]string{c.ID, c.Name}, c.Aliases...)
		if err := register(t.criticAlias, c.ID, names, "critic"); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func register(index map[string]string, id string, names []string, kind string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		for _, key := range []string{foldKey(name), Slugify(name)} {
			if key == "" || key == model.UnknownID {
				continue
			}
			if existing, ok := index[key]; ok && existing != id {
				return eris.Errorf("normalize: %s alias %q claimed by both %q and %q", kind, name, existing, id)
			}
			index[key] = id
		}
	}
	return nil
}

// ParseAliases builds an alias table from YAML.
func ParseAliases(data []byte) (*AliasTable, error) {
	var f AliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "normalize: parse aliases")
	}
	if f.Version == "" {
		return nil, eris.New("normalize: alias table has no version")
	}
	return NewAliasTable(f.Version, f.Outlets, f.Critics)
}

// LoadAliases reads an alias table from a YAML file.
func LoadAliases(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read aliases %s", path)
	}
	return ParseAliases(data)
}

// DefaultAliases returns the alias table compiled into the binary.
func DefaultAliases() *AliasTable {
	t, err := ParseAliases(defaultAliasesYAML)
	if err != nil {
		panic(err) // embedded table is validated by tests
	}
	return t
}

// Version identifies the table's data revision.
func (t *AliasTable) Version() string { return t.version }

// Outlet returns the canonical outlet entry for id.
func (t *AliasTable) Outlet(id string) (model.Outlet, bool) {
	o, ok := t.outlets[id]
	return o, ok
}

// Outlets returns every outlet sorted by ID.
func (t *AliasTable) Outlets() []model.Outlet {
	out := make([]model.Outlet, 0, len(t.outlets))
	for _, o := range t.outlets {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Critics returns every critic sorted by ID.
func (t *AliasTable) Critics() []model.Critic {
	out := make([]model.Critic, 0, len(t.critics))
	for _, c := range t.critics {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *AliasTable) lookupOutlet(raw string) (string, bool) {
	return lookup(t.outletAlias, raw)
}

func (t *AliasTable) lookupCritic(raw string) (string, bool) {
	return lookup(t.criticAlias, raw)
}

func lookup(index map[string]string, raw string) (string, bool) {
	if id, ok := index[foldKey(raw)]; ok {
		return id, true
	}
	id, ok := index[Slugify(raw)]
	return id, ok
}

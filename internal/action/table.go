package action

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed policy.toml
var defaultPolicy []byte

// Configuration is the approval policy and descriptive metadata of one type.
type Configuration struct {
	Type             Type   `toml:"type" json:"type"`
	RequiresApproval bool   `toml:"requires_approval" json:"requiresApproval"`
	Description      string `toml:"description" json:"description"`
	Category         string `toml:"category" json:"category"`
}

// policyFile mirrors the TOML document layout.
type policyFile struct {
	Actions []Configuration `toml:"action"`
}

// Table is the read-only mapping from type to configuration. Entries keep
// their file order for display.
type Table struct {
	byType  map[Type]Configuration
	ordered []Configuration
}

// DefaultTable parses the embedded policy. The embedded document is part of
// the binary, so a parse failure is a programming error.
func DefaultTable() *Table {
	t, err := LoadTable(bytes.NewReader(defaultPolicy))
	if err != nil {
		panic(fmt.Sprintf("action: embedded policy: %v", err))
	}
	return t
}

// LoadTableFile reads a policy table from a TOML file on disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("action: open policy %s: %w", path, err)
	}
	defer f.Close()
	return LoadTable(f)
}

// LoadTable decodes a TOML policy document. Unknown keys, empty types and
// duplicate types are rejected.
func LoadTable(r io.Reader) (*Table, error) {
	var doc policyFile
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("action: parse policy: %w", err)
	}
	if len(doc.Actions) == 0 {
		return nil, fmt.Errorf("action: policy defines no action types")
	}

	t := &Table{byType: make(map[Type]Configuration, len(doc.Actions))}
	for i, cfg := range doc.Actions {
		cfg.Type = Type(strings.TrimSpace(string(cfg.Type)))
		if cfg.Type == "" {
			return nil, fmt.Errorf("action: policy entry %d: type is empty", i)
		}
		if _, dup := t.byType[cfg.Type]; dup {
			return nil, fmt.Errorf("action: policy entry %d: duplicate type %q", i, cfg.Type)
		}
		t.byType[cfg.Type] = cfg
		t.ordered = append(t.ordered, cfg)
	}
	return t, nil
}

// Lookup returns the configuration for typ or ErrUnknownType.
func (t *Table) Lookup(typ Type) (Configuration, error) {
	cfg, ok := t.byType[typ]
	if !ok {
		return Configuration{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return cfg, nil
}

// All returns every configuration in declaration order.
func (t *Table) All() []Configuration {
	out := make([]Configuration, len(t.ordered))
	copy(out, t.ordered)
	return out
}

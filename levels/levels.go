// Package levels resolves the level byte of a state update to a level name.
package levels

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/multispidey/spideysync/core"
)

//go:embed default.yaml
var defaultTable []byte

type entry struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type file struct {
	Levels []entry `yaml:"levels"`
}

// Table is an immutable level lookup table.
type Table struct {
	names map[uint8]string
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("levels: embedded table: %v", err))
	}
	return t
}

// Load reads a table from a YAML file. An empty path yields Default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("level table %s: %w", path, err)
	}
	return t, nil
}

func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse level table: %w", err)
	}
	t := &Table{names: make(map[uint8]string, len(f.Levels))}
	for _, e := range f.Levels {
		if e.ID < 0 || e.ID > 0xff {
			return nil, fmt.Errorf("level id %d out of byte range", e.ID)
		}
		if _, dup := t.names[uint8(e.ID)]; dup {
			return nil, fmt.Errorf("duplicate level id %d", e.ID)
		}
		t.names[uint8(e.ID)] = e.Name
	}
	return t, nil
}

// Resolve implements core.LevelResolver. Unknown ids resolve to a
// placeholder so one outdated table never stops state updates.
func (t *Table) Resolve(id uint8) core.Level {
	name, ok := t.names[id]
	if !ok {
		return core.Level{ID: id, Name: fmt.Sprintf("Unknown level 0x%02X", id)}
	}
	return core.Level{ID: id, Name: strings.TrimSpace(name)}
}

func (t *Table) Len() int {
	return len(t.names)
}

package model

import (
	_ "embed"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Ability field paths used by the query builder.
const (
	FieldBestOverall         = "능력치.포지션능력치.최고능력치"
	FieldPositionBestOverall = "능력치.포지션능력치.포지션최고능력치"
)

// Abilities is the 능력치 block. The position ratings are typed; every other
// key must appear in the field table and is kept as-is.
type Abilities struct {
	Position PositionRatings `bson:"포지션능력치" json:"position"`
	Stats    map[string]any  `bson:",inline" json:"stats,omitempty"`
}

// PositionRatings summarizes a player's rating per position.
type PositionRatings struct {
	MainPositions []string `bson:"주포지션,omitempty" json:"main_positions,omitempty"`
	BestOverall   float64  `bson:"최고능력치,omitempty" json:"best_overall,omitempty"`
	PositionBest  string   `bson:"포지션최고능력치,omitempty" json:"position_best,omitempty"`
}

// FieldKind distinguishes the typed position block from plain stats.
type FieldKind string

const (
	FieldKindPosition FieldKind = "position"
	FieldKindStat     FieldKind = "stat"
)

// FieldSpec is one entry of the ability field table.
type FieldSpec struct {
	Key      string    `yaml:"key"`
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required"`
}

// FieldTable is the versioned list of keys allowed in the ability block.
type FieldTable struct {
	Version int         `yaml:"version"`
	Block   string      `yaml:"block"`
	Fields  []FieldSpec `yaml:"fields"`

	byKey map[string]FieldSpec
}

//go:embed fields_v1.yaml
var fieldsV1 []byte

// DefaultFieldTable parses the embedded field table. It panics on a malformed
// table since that is a build defect, not a runtime condition.
func DefaultFieldTable() *FieldTable {
	t, err := ParseFieldTable(fieldsV1)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseFieldTable decodes and validates a YAML field table.
func ParseFieldTable(data []byte) (*FieldTable, error) {
	var t FieldTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "model: parse field table")
	}
	if t.Version <= 0 {
		return nil, eris.New("model: field table: version must be positive")
	}
	if len(t.Fields) == 0 {
		return nil, eris.New("model: field table: no fields")
	}

	t.byKey = make(map[string]FieldSpec, len(t.Fields))
	positions := 0
	for _, f := range t.Fields {
		if f.Key == "" {
			return nil, eris.New("model: field table: empty key")
		}
		if _, dup := t.byKey[f.Key]; dup {
			return nil, eris.Errorf("model: field table: duplicate key %q", f.Key)
		}
		switch f.Kind {
		case FieldKindPosition:
			positions++
		case FieldKindStat:
		default:
			return nil, eris.Errorf("model: field table: key %q has unknown kind %q", f.Key, f.Kind)
		}
		t.byKey[f.Key] = f
	}
	if positions != 1 {
		return nil, eris.Errorf("model: field table: want exactly one position field, got %d", positions)
	}
	return &t, nil
}

// Lookup returns the FieldSpec for key.
func (t *FieldTable) Lookup(key string) (FieldSpec, bool) {
	f, ok := t.byKey[key]
	return f, ok
}

// Validate checks an ability block against the table. It returns the keys
// that are not in the table (sorted) and an error when a required stat is missing.
func (t *FieldTable) Validate(a Abilities) (unknown []string, err error) {
	for k := range a.Stats {
		if _, ok := t.byKey[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	for _, f := range t.Fields {
		if !f.Required || f.Kind != FieldKindStat {
			continue
		}
		if _, ok := a.Stats[f.Key]; !ok {
			return unknown, eris.Errorf("model: ability block missing required field %q", f.Key)
		}
	}
	return unknown, nil
}

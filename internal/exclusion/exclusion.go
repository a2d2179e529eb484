// Package exclusion holds the immutable set of player ids that campaigns
// never dispatch.
package exclusion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Set is a read-only collection of excluded player ids. The zero value and a
// nil *Set both exclude nothing. Safe for concurrent reads.
type Set struct {
	ids map[int64]struct{}
}

// New builds a Set from ids. Later changes to ids do not affect the Set.
func New(ids ...int64) *Set {
	s := &Set{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is excluded.
func (s *Set) Contains(id int64) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of excluded ids.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Load reads a JSON or YAML array of ids. The format follows the file
// extension; anything other than .json is parsed as YAML. An empty path
// yields an empty Set.
func Load(path string) (*Set, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "exclusion: read %s", path)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

// Parse decodes a list of ids. Entries may be numbers or numeric strings.
func Parse(data []byte, isJSON bool) (*Set, error) {
	var raw []flexID
	if isJSON {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "exclusion: parse json")
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "exclusion: parse yaml")
		}
	}

	ids := make([]int64, len(raw))
	for i, id := range raw {
		ids[i] = int64(id)
	}
	return New(ids...), nil
}

// flexID accepts 101000001 and "101000001" alike.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Errorf("exclusion: invalid id %s", string(b))
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := n.Int64()
	if err != nil {
		return eris.Wrapf(err, "exclusion: invalid id %s", string(b))
	}
	*f = flexID(v)
	return nil
}

func (f *flexID) UnmarshalYAML(node *yaml.Node) error {
	var v int64
	if err := node.Decode(&v); err != nil {
		var s string
		if serr := node.Decode(&s); serr != nil {
			return eris.Errorf("exclusion: invalid id at line %d", node.Line)
		}
		n, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if perr != nil {
			return eris.Errorf("exclusion: invalid id %q at line %d", s, node.Line)
		}
		v = n
	}
	*f = flexID(v)
	return nil
}

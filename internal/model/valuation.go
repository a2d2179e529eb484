package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrorMarker is the value written in place of a price when a failed
// extraction is recorded rather than dropped.
const ErrorMarker = "ERROR"

// Grade is an enhancement tier of a player card.
type Grade int

const (
	MinGrade Grade = 1
	MaxGrade Grade = 8
)

// Valid reports whether g lies in the supported range.
func (g Grade) Valid() bool {
	return g >= MinGrade && g <= MaxGrade
}

// AllGrades returns every supported grade in ascending order.
func AllGrades() []Grade {
	out := make([]Grade, 0, MaxGrade-MinGrade+1)
	for g := MinGrade; g <= MaxGrade; g++ {
		out = append(out, g)
	}
	return out
}

// ParseGrades converts flag values such as "1,2,3" or "1-8" into grades.
func ParseGrades(values []string) ([]Grade, error) {
	var out []Grade
	seen := make(map[Grade]bool)
	add := func(g Grade) error {
		if !g.Valid() {
			return eris.Errorf("model: grade %d out of range %d-%d", g, MinGrade, MaxGrade)
		}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
		return nil
	}

	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if lo, hi, ok := strings.Cut(part, "-"); ok {
				from, err := strconv.Atoi(strings.TrimSpace(lo))
				if err != nil {
					return nil, eris.Wrapf(err, "model: parse grade range %q", part)
				}
				to, err := strconv.Atoi(strings.TrimSpace(hi))
				if err != nil {
					return nil, eris.Wrapf(err, "model: parse grade range %q", part)
				}
				if from > to {
					return nil, eris.Errorf("model: grade range %q is reversed", part)
				}
				for g := from; g <= to; g++ {
					if err := add(Grade(g)); err != nil {
						return nil, err
					}
				}
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, eris.Wrapf(err, "model: parse grade %q", part)
			}
			if err := add(Grade(n)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// OutcomeKind classifies how a work item finished.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeTimeout    OutcomeKind = "timeout"
	OutcomeNavigation OutcomeKind = "navigation"
	OutcomeExtraction OutcomeKind = "extraction"
	OutcomeSkipped    OutcomeKind = "skipped"
)

// ValuationRecord is the terminal outcome of one (player, grade) work item.
type ValuationRecord struct {
	EntityID   int64       `json:"entity_id"`
	Grade      Grade       `json:"grade"`
	Value      string      `json:"value"`
	Kind       OutcomeKind `json:"kind"`
	Err        error       `json:"-"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Failed reports whether the record carries an error outcome.
func (r ValuationRecord) Failed() bool {
	return r.Kind != OutcomeSuccess && r.Kind != OutcomeSkipped
}

// Key identifies the (player, grade) pair.
func (r ValuationRecord) Key() string {
	return fmt.Sprintf("%d/%d", r.EntityID, r.Grade)
}

// PriceID is the string-coerced player id used by the prices collection.
func PriceID(entityID int64) string {
	return strconv.FormatInt(entityID, 10)
}

package campaign

import (
	"github.com/rotisserie/eris"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// Grouping selects how work items are scheduled and written.
type Grouping string

const (
	// GroupByGrade gives every (player, grade) pair its own slot.
	GroupByGrade Grouping = "grade"
	// GroupByEntity walks a player's grades in order inside one slot.
	GroupByEntity Grouping = "entity"
	// GroupBySeason runs and writes one season at a time.
	GroupBySeason Grouping = "season"
)

// ParseGrouping validates a configured grouping. Empty means GroupByGrade.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case "", GroupByGrade:
		return GroupByGrade, nil
	case GroupByEntity:
		return GroupByEntity, nil
	case GroupBySeason:
		return GroupBySeason, nil
	}
	return "", eris.Errorf("campaign: unknown grouping %q", s)
}

// Items expands players and grades into work items, player-major.
func Items(ids []int64, grades []model.Grade) []WorkItem {
	items := make([]WorkItem, 0, len(ids)*len(grades))
	for _, id := range ids {
		for _, g := range grades {
			items = append(items, WorkItem{EntityID: id, Grade: g})
		}
	}
	return items
}

// Units arranges items into pool units for the grouping.
func Units(items []WorkItem, g Grouping) []Unit {
	if g != GroupByEntity {
		units := make([]Unit, len(items))
		for i, it := range items {
			units[i] = Unit{it}
		}
		return units
	}

	idx := make(map[int64]int)
	var units []Unit
	for _, it := range items {
		i, ok := idx[it.EntityID]
		if !ok {
			i = len(units)
			idx[it.EntityID] = i
			units = append(units, nil)
		}
		units[i] = append(units[i], it)
	}
	return units
}

// Batch is a slice of work that is extracted and written together.
type Batch struct {
	Season int64 // -1 when the batch spans seasons
	Items  []WorkItem
}

// Batches splits items into write batches. Only GroupBySeason produces more
// than one, ordered by each season's first appearance.
func Batches(items []WorkItem, g Grouping) []Batch {
	if g != GroupBySeason {
		return []Batch{{Season: -1, Items: items}}
	}

	idx := make(map[int64]int)
	var out []Batch
	for _, it := range items {
		season := it.EntityID / model.SeasonSpan
		i, ok := idx[season]
		if !ok {
			i = len(out)
			idx[season] = i
			out = append(out, Batch{Season: season})
		}
		out[i].Items = append(out[i].Items, it)
	}
	return out
}

package query

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Predicates is an ordered conjunction of filter clauses. Push and Pop let a
// caller add a per-iteration clause on top of a shared base.
type Predicates struct {
	conds []bson.D
}

// Push appends a clause.
func (p *Predicates) Push(cond bson.D) {
	p.conds = append(p.conds, cond)
}

// Pop removes and returns the last clause.
func (p *Predicates) Pop() (bson.D, bool) {
	if len(p.conds) == 0 {
		return nil, false
	}
	last := p.conds[len(p.conds)-1]
	p.conds = p.conds[:len(p.conds)-1]
	return last, true
}

// Len returns the number of clauses.
func (p *Predicates) Len() int {
	return len(p.conds)
}

// Filter renders the conjunction. An empty stack matches every document.
func (p *Predicates) Filter() bson.D {
	if len(p.conds) == 0 {
		return bson.D{}
	}
	and := make(bson.A, 0, len(p.conds))
	for _, c := range p.conds {
		and = append(and, c)
	}
	return bson.D{{Key: "$and", Value: and}}
}

package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PriceDocument is one document of the prices collection. ID is the player id
// as a string; each grade appears at most once in Prices.
type PriceDocument struct {
	ObjectID primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID       string             `bson:"id" json:"id"`
	Prices   []PriceEntry       `bson:"prices" json:"prices"`
}

// PriceEntry is the market value of a player at one grade.
type PriceEntry struct {
	Grade Grade  `bson:"grade" json:"grade"`
	Price string `bson:"price" json:"price"`
}

// PriceAt returns the price stored for grade.
func (d *PriceDocument) PriceAt(g Grade) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, p := range d.Prices {
		if p.Grade == g {
			return p.Price, true
		}
	}
	return "", false
}

// PriceUpsert is a single (id, grade) → price write. Applying the same
// PriceUpsert any number of times leaves the store in the same state.
type PriceUpsert struct {
	ID    string
	Grade Grade
	Price string
}

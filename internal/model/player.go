package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SeasonSpan is the width of the player id block owned by one season.
// A player's season number is its id divided by SeasonSpan.
const SeasonSpan = 1_000_000

// PlayerReport is one document of the playerreports collection: the entity
// whose market value a campaign collects.
type PlayerReport struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID        int64              `bson:"id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"선수이미지,omitempty" json:"image,omitempty"`
	Profile   PlayerProfile      `bson:"선수정보" json:"profile"`
	Abilities Abilities          `bson:"능력치" json:"abilities"`
}

// Season returns the season number encoded in the player id.
func (p PlayerReport) Season() int64 {
	return p.ID / SeasonSpan
}

// PlayerProfile holds the nested profile block, including the references
// that the query builder resolves.
type PlayerProfile struct {
	Body        BodyInfo             `bson:"신체정보" json:"body"`
	Salary      int                  `bson:"급여" json:"salary"`
	Nationality Nationality          `bson:"국적" json:"nationality"`
	TraitRefs   []primitive.ObjectID `bson:"특성,omitempty" json:"-"`
	Clubs       []string             `bson:"클럽경력" json:"clubs"`
	SeasonImage SeasonImageRef       `bson:"시즌이미지" json:"season_image"`
	PricesRef   primitive.ObjectID   `bson:"prices,omitempty" json:"-"`
	TraitColors []any                `bson:"특성컬러,omitempty" json:"trait_colors,omitempty"`

	// Resolved references. Never persisted.
	Traits []Trait        `bson:"-" json:"traits,omitempty"`
	Prices *PriceDocument `bson:"-" json:"prices,omitempty"`
}

// BodyInfo is the physical profile of a player.
type BodyInfo struct {
	Birth    time.Time `bson:"birth,omitempty" json:"birth,omitempty"`
	Height   string    `bson:"height,omitempty" json:"height,omitempty"`
	Weight   string    `bson:"weight,omitempty" json:"weight,omitempty"`
	Physical string    `bson:"physical,omitempty" json:"physical,omitempty"`
	Skill    string    `bson:"skill,omitempty" json:"skill,omitempty"`
	Foot     string    `bson:"foot,omitempty" json:"foot,omitempty"`
	MainFoot string    `bson:"mainfoot,omitempty" json:"main_foot,omitempty"`
}

// Nationality is the player's country and its flag image.
type Nationality struct {
	Country string `bson:"국적,omitempty" json:"country,omitempty"`
	Image   string `bson:"국적이미지,omitempty" json:"image,omitempty"`
}

// SeasonImageRef points at a seasonids document and carries the large card image.
type SeasonImageRef struct {
	Ref      primitive.ObjectID `bson:"시즌이미지,omitempty" json:"-"`
	BigImage string             `bson:"시즌빅이미지,omitempty" json:"big_image,omitempty"`

	Season *SeasonImage `bson:"-" json:"season,omitempty"`
}

// SeasonImage is one document of the seasonids collection.
type SeasonImage struct {
	ObjectID   primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SeasonID   int                `bson:"seasonId" json:"season_id"`
	ClassName  string             `bson:"className" json:"class_name"`
	SeasonImg  string             `bson:"seasonImg" json:"season_img"`
	SeasonCard string             `bson:"seasonCard" json:"season_card"`
}

// Trait is one document of the specificities collection.
type Trait struct {
	ObjectID primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Name     string             `bson:"name,omitempty" json:"name,omitempty"`
	Image    string             `bson:"image,omitempty" json:"image,omitempty"`
}

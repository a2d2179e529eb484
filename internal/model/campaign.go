package model

import (
	"time"
)

// RunStatus represents the current state of a campaign run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusSearching  RunStatus = "searching"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusWriting    RunStatus = "writing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// CampaignSpec describes what a campaign collects.
type CampaignSpec struct {
	Seasons   []string `json:"seasons"`
	MinOvr    int      `json:"min_ovr"`
	Grades    []Grade  `json:"grades"`
	EntityIDs []int64  `json:"entity_ids,omitempty"` // explicit ids bypass the query builder
}

// Tally counts terminal outcomes of a campaign.
type Tally struct {
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Written    int `json:"written"`
}

// CampaignRun is one end-to-end campaign as tracked by the run ledger.
type CampaignRun struct {
	ID        string       `json:"id"`
	Spec      CampaignSpec `json:"spec"`
	Status    RunStatus    `json:"status"`
	Tally     Tally        `json:"tally"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/folio-labs/journey/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TimelineInfo{},
	&Experience{},
	&ServerStatus{},
}

// TimelineInfo describes the owner of the timeline
type TimelineInfo struct {
	gorm.Model
	OwnerName string `json:"ownerName" gorm:"size:127"`
	Headline  string `json:"headline" gorm:"size:255"`
	SiteURL   string `json:"siteUrl" gorm:"size:255"`
}

func (*TimelineInfo) TableName() string {
	return "timeline_infos"
}

// Experience is one milestone row. Rows are ordered by SortOrder, then ID.
type Experience struct {
	gorm.Model
	SortOrder  int            `json:"sort_order" gorm:"index;not null;default:0"`
	Role       string         `json:"role" gorm:"size:255;not null"`
	Company    string         `json:"company" gorm:"size:255;not null"`
	StartDate  string         `json:"start_date" gorm:"size:64;not null"`
	EndDate    *string        `json:"end_date" gorm:"size:64"`
	Location   *string        `json:"location" gorm:"size:255"`
	Highlights datatypes.JSON `json:"highlights"`
}

func (*Experience) TableName() string {
	return "experiences"
}

// ToMilestone converts the row to its display value. A null or empty
// highlights column yields no highlights.
func (e Experience) ToMilestone() (core.Milestone, error) {
	m := core.Milestone{
		Role:      e.Role,
		Company:   e.Company,
		StartDate: e.StartDate,
		EndDate:   e.EndDate,
		Location:  e.Location,
	}
	if len(e.Highlights) == 0 || string(e.Highlights) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(e.Highlights, &m.Highlights); err != nil {
		return core.Milestone{}, fmt.Errorf("experience %d highlights: %w", e.ID, err)
	}
	return m, nil
}

// ExperienceFromMilestone builds the row for milestone m at position order.
func ExperienceFromMilestone(m core.Milestone, order int) (Experience, error) {
	e := Experience{
		SortOrder: order,
		Role:      m.Role,
		Company:   m.Company,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		Location:  m.Location,
	}
	if len(m.Highlights) > 0 {
		raw, err := json.Marshal(m.Highlights)
		if err != nil {
			return Experience{}, fmt.Errorf("encode highlights: %w", err)
		}
		e.Highlights = datatypes.JSON(raw)
	}
	return e, nil
}

// ServerStatus is a periodic snapshot of the session server
type ServerStatus struct {
	ID             uint       `json:"id" gorm:"primarykey"`
	Time           time.Time  `json:"time" gorm:"index:idx_server_status_time"`
	ActiveSessions int        `json:"activeSessions"`
	TrackCache     CacheStats `json:"trackCache" gorm:"embedded;embeddedPrefix:track_cache_"`
	UptimeSeconds  float64    `json:"uptimeSeconds"`
}

func (*ServerStatus) TableName() string {
	return "server_statuses"
}

// CacheStats is the model for the track cache counters
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

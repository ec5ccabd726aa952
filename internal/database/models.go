package database

import (
	"fmt"
	"time"
)

// BusTrace is one word seen on or put onto the bus.
type BusTrace struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	At       time.Time `gorm:"index;not null" json:"at"`
	Endpoint string    `gorm:"index;size:32" json:"endpoint"`
	Kind     string    `gorm:"index;size:24" json:"kind"`
	Channel  int       `json:"channel"`
	Word     uint32    `json:"word"`
	Label    string    `gorm:"size:3" json:"label"`
	Control  string    `gorm:"size:8" json:"control,omitempty"`
	Detail   string    `gorm:"size:128" json:"detail,omitempty"`
}

// TableName specifies the table name for GORM
func (BusTrace) TableName() string {
	return "bus_traces"
}

func (t BusTrace) String() string {
	s := fmt.Sprintf("%s %s ch%d %s:%08X", t.At.Format("15:04:05.000"), t.Endpoint, t.Channel, t.Kind, t.Word)
	if t.Control != "" {
		s += " " + t.Control
	}
	return s
}

// SessionEvent records handshake milestones: state changes, retries,
// timeouts and peer address locks.
type SessionEvent struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	At       time.Time `gorm:"index;not null" json:"at"`
	Endpoint string    `gorm:"index;size:32" json:"endpoint"`
	Kind     string    `gorm:"index;size:24" json:"kind"`
	From     string    `gorm:"size:16" json:"from,omitempty"`
	To       string    `gorm:"size:16" json:"to,omitempty"`
	Layout   string    `gorm:"size:4" json:"layout,omitempty"`
	Detail   string    `gorm:"size:128" json:"detail,omitempty"`
}

// TableName specifies the table name for GORM
func (SessionEvent) TableName() string {
	return "session_events"
}

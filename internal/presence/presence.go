package presence

import (
	"sync"
	"time"

	"support-engine/internal/common/clock"
)

// Status is an actor's coarse availability.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Record is one actor's availability with the instant it was last refreshed.
type Record struct {
	ActorID  string    `json:"actorId"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Roster tracks actor availability for one organization scope.
type Roster struct {
	clk clock.Clock

	mu      sync.Mutex
	records map[string]*Record
}

func NewRoster(clk clock.Clock) *Roster {
	return &Roster{
		clk:     clk,
		records: make(map[string]*Record),
	}
}

// Set records an actor's availability. Offline removes the record.
func (r *Roster) Set(actorID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status == StatusOffline {
		delete(r.records, actorID)
		return
	}
	r.records[actorID] = &Record{
		ActorID:  actorID,
		Status:   status,
		LastSeen: r.clk.Now(),
	}
}

// Get returns an actor's record; absent actors are offline.
func (r *Roster) Get(actorID string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[actorID]; ok {
		return *rec
	}
	return Record{ActorID: actorID, Status: StatusOffline}
}

// Online returns every actor currently online or away.
func (r *Roster) Online() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

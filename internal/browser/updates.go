package browser

import (
	"fmt"
	"time"

	"server-browser/internal/domain"
	"server-browser/internal/servers"
)

// UpdateKind tags the events a refresh emits to subscribers.
type UpdateKind uint8

const (
	// UpdateStarted opens a refresh round.
	UpdateStarted UpdateKind = iota
	// UpdateServer reports one resolved record; these arrive in
	// completion order and are best-effort for slow subscribers.
	UpdateServer
	// UpdateCompleted closes a round and carries the published list.
	UpdateCompleted
	// UpdateFailed closes a round that could not produce a list.
	UpdateFailed
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStarted:
		return "started"
	case UpdateServer:
		return "server"
	case UpdateCompleted:
		return "completed"
	case UpdateFailed:
		return "failed"
	default:
		return fmt.Sprintf("update(%d)", uint8(k))
	}
}

// Update is one event in a refresh round's stream.
type Update struct {
	Kind   UpdateKind
	Record domain.Server      // set for UpdateServer
	List   servers.ServerList // set for UpdateCompleted
	Stats  Stats              // set for UpdateCompleted
	Err    error              // set for UpdateFailed
}

// Stats summarizes a completed refresh round.
type Stats struct {
	Total     int           `json:"total"`
	Fresh     int           `json:"fresh"`
	Degraded  int           `json:"degraded"`
	Favorites int           `json:"favorites_merged"`
	Duration  time.Duration `json:"duration_ns"`
	At        time.Time     `json:"at"`
}

package domain

import "time"

// Session is one entry in the join trail: which server the player
// connected to and when.
type Session struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	ServerName  string    `json:"server_name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

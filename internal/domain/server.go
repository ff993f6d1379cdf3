package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Server describes one remote game server: its directory-assigned
// identity plus the last status obtained from a direct query.
//
// Identity fields (ID, Host, Port, Kind, Ownership, Region) never change
// across a status update; everything else is refreshed by the query
// client while a refresh round is being staged. Once a record has been
// published inside a ServerList it is treated as read-only.
type Server struct {
	// Identity, assigned by the master list (or derived for favorites).
	ID        string
	Host      string
	Port      int
	Kind      Kind
	Ownership Ownership
	Region    Region

	// Status, populated by the query client.
	Name              string
	Map               string
	BuildID           uint32
	PasswordProtected bool
	BattlEye          bool
	Mods              []string
	Players           int
	MaxPlayers        int
	Ping              time.Duration
	// LastSeen is the time of the last successful status exchange;
	// zero means the server never answered a query.
	LastSeen time.Time

	Validity Validity
}

// Addr returns the server's network endpoint in host:port form.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SplitAddr parses a host:port endpoint into its parts.
func SplitAddr(addr string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// Mode derives the browse category from Kind and Ownership: official
// servers are their own mode, privately run servers split by whether a
// hosting provider or the player's own box runs them.
func (s *Server) Mode() Mode {
	switch {
	case s.Kind == KindOfficial:
		return ModeOfficial
	case s.Ownership == OwnershipProvider:
		return ModeHosted
	default:
		return ModeCommunity
	}
}

// Modded reports whether the server announced any mods.
func (s *Server) Modded() bool {
	return len(s.Mods) > 0
}

// Queried reports whether the server ever completed a status exchange.
func (s *Server) Queried() bool {
	return !s.LastSeen.IsZero()
}

// RecomputeValidity reclassifies the record against the local build.
// Must be called whenever BuildID or the queried state changes. A zero
// localBuild accepts any remote build (no installation to compare with).
func (s *Server) RecomputeValidity(localBuild uint32) {
	switch {
	case !s.Queried():
		s.Validity = ValidityInvalid
	case localBuild != 0 && s.BuildID != localBuild:
		s.Validity = ValidityOutdated
	default:
		s.Validity = ValidityValid
	}
}

// Package httpapi exposes the browser over a small JSON API. Route
// handlers translate query parameters into view criteria and map the
// engine's error taxonomy onto HTTP status codes; cross-cutting
// wrapping (request ids, CORS) happens in the daemon.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"server-browser/internal/browser"
	"server-browser/internal/config"
	"server-browser/internal/domain"
	"server-browser/internal/query"
	"server-browser/internal/repository"
)

type Server struct {
	browser *browser.Browser
	cfg     *config.Config
	logger  zerolog.Logger
}

func NewServer(b *browser.Browser, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{browser: b, cfg: cfg, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/servers", s.handleServers)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/ping/{address}", s.handlePing)
	mux.HandleFunc("GET /api/favorites", s.handleFavoritesList)
	mux.HandleFunc("POST /api/favorites", s.handleFavoritesAdd)
	mux.HandleFunc("DELETE /api/favorites/{address}", s.handleFavoritesRemove)
	mux.HandleFunc("GET /api/sessions", s.handleSessionsList)
	mux.HandleFunc("GET /api/sessions/last", s.handleSessionsLast)
	mux.HandleFunc("POST /api/sessions", s.handleSessionsRecord)
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

type serverView struct {
	ID                string    `json:"id"`
	Address           string    `json:"address"`
	Name              string    `json:"name"`
	Map               string    `json:"map"`
	Kind              string    `json:"kind"`
	Ownership         string    `json:"ownership"`
	Mode              string    `json:"mode"`
	Region            string    `json:"region"`
	Players           int       `json:"players"`
	MaxPlayers        int       `json:"max_players"`
	BuildID           uint32    `json:"build_id"`
	PasswordProtected bool      `json:"password_protected"`
	BattlEye          bool      `json:"battleye"`
	Mods              []string  `json:"mods,omitempty"`
	PingMS            int64     `json:"ping_ms"`
	LastSeen          time.Time `json:"last_seen"`
	Validity          string    `json:"validity"`
}

func newServerView(rec *domain.Server) serverView {
	return serverView{
		ID:                rec.ID,
		Address:           rec.Addr(),
		Name:              rec.Name,
		Map:               rec.Map,
		Kind:              rec.Kind.String(),
		Ownership:         rec.Ownership.String(),
		Mode:              rec.Mode().String(),
		Region:            rec.Region.String(),
		Players:           rec.Players,
		MaxPlayers:        rec.MaxPlayers,
		BuildID:           rec.BuildID,
		PasswordProtected: rec.PasswordProtected,
		BattlEye:          rec.BattlEye,
		Mods:              rec.Mods,
		PingMS:            rec.Ping.Milliseconds(),
		LastSeen:          rec.LastSeen,
		Validity:          rec.Validity.String(),
	}
}

type serversResponse struct {
	Total   int          `json:"total"`
	Servers []serverView `json:"servers"`
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	criteria, sortBy, err := viewParams(r.URL.Query(), s.cfg.Browse)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := s.browser.View(criteria, sortBy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	out := make([]serverView, view.Len())
	for i := 0; i < view.Len(); i++ {
		out[i] = newServerView(view.At(i))
	}
	s.writeJSON(w, http.StatusOK, serversResponse{Total: len(out), Servers: out})
}

type refreshResponse struct {
	Total int           `json:"total"`
	Stats browser.Stats `json:"stats"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	list, stats, err := s.browser.Refresh(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, browser.ErrSuperseded) {
			status = http.StatusConflict
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{Total: list.Len(), Stats: stats})
}

type statusResponse struct {
	Servers     int           `json:"servers"`
	LastRefresh browser.Stats `json:"last_refresh"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Servers:     s.browser.Servers().Len(),
		LastRefresh: s.browser.LastStats(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if _, _, err := domain.SplitAddr(address); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	queried, err := s.browser.Ping(r.Context(), address)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, query.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newServerView(&queried))
}

type favoritesResponse struct {
	Favorites []domain.FavoriteServer `json:"favorites"`
}

func (s *Server) handleFavoritesList(w http.ResponseWriter, r *http.Request) {
	favs, err := s.browser.Favorites(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if favs == nil {
		favs = []domain.FavoriteServer{}
	}
	s.writeJSON(w, http.StatusOK, favoritesResponse{Favorites: favs})
}

type favoriteRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (s *Server) handleFavoritesAdd(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, _, err := domain.SplitAddr(req.Address); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	fav := domain.FavoriteServer{Address: req.Address, Name: req.Name}
	if err := s.browser.AddFavorite(r.Context(), fav); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, fav)
}

func (s *Server) handleFavoritesRemove(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := s.browser.RemoveFavorite(r.Context(), address); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = n
	}

	sessions, err := s.browser.RecentSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

func (s *Server) handleSessionsLast(w http.ResponseWriter, r *http.Request) {
	sess, err := s.browser.LastConnected(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type sessionRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleSessionsRecord(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, _, err := domain.SplitAddr(req.Address); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.browser.MarkJoined(r.Context(), req.Address)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-browser/internal/browser"
	"server-browser/internal/config"
	"server-browser/internal/database"
	"server-browser/internal/domain"
	"server-browser/internal/masterlist"
	"server-browser/internal/query"
	"server-browser/internal/repository"
	"server-browser/internal/servers"
)

func startStub(t *testing.T, status *query.Status) int {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			token, err := query.DecodeRequest(buf[:n])
			if err != nil || status == nil {
				continue
			}
			reply, err := query.EncodeResponse(token, *status)
			if err != nil {
				continue
			}
			conn.WriteToUDP(reply, remote)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

func entry(id, kind, ownership, region string, port int) map[string]any {
	return map[string]any{
		"id":        id,
		"name":      "Last Known " + id,
		"host":      "127.0.0.1",
		"port":      port,
		"kind":      kind,
		"ownership": ownership,
		"region":    region,
	}
}

func serveRoster(t *testing.T, entries ...map[string]any) *httptest.Server {
	t.Helper()
	if entries == nil {
		entries = []map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"servers": entries})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAPI(t *testing.T, masterURL string) (*Server, *browser.Browser) {
	t.Helper()

	cfg := &config.Config{
		MasterURL:        masterURL,
		DBPath:           filepath.Join(t.TempDir(), "api.db"),
		LocalBuildID:     100,
		QueryConcurrency: 16,
		QueryTimeout:     250 * time.Millisecond,
		QueryRetries:     0,
		QueryRate:        100000,
		Browse: config.BrowseDefaults{
			SortBy: servers.SortCriteria{Key: servers.SortByName, Ascending: true},
		},
	}

	log := zerolog.Nop()
	db, err := database.New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b, err := browser.New(
		masterlist.NewFetcher(cfg, log),
		query.NewClient(cfg, log),
		repository.NewFavoritesRepository(db, log),
		repository.NewSessionRepository(db, log),
		log,
	)
	require.NoError(t, err)

	return NewServer(b, cfg, log), b
}

// threeServerAPI builds an API over one valid official server, one
// unreachable hosted one and one outdated password-protected community
// one, refreshed and ready to serve views.
func threeServerAPI(t *testing.T) *Server {
	t.Helper()

	portA := startStub(t, &query.Status{
		BuildID: 100, Players: 12, MaxPlayers: 32, BattlEye: true,
		Name: "Alpha Keep", Map: "dunes",
	})
	portB := startStub(t, nil)
	portC := startStub(t, &query.Status{
		BuildID: 999, Players: 3, MaxPlayers: 16, PasswordProtected: true,
		Name: "Charlie Yard", Map: "marsh",
	})

	master := serveRoster(t,
		entry("srv-a", "official", "publisher", "eu", portA),
		entry("srv-b", "private", "provider", "na-east", portB),
		entry("srv-c", "private", "self-hosted", "oceania", portC),
	)

	api, b := newTestAPI(t, master.URL)
	_, _, err := b.Refresh(context.Background())
	require.NoError(t, err)
	return api
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func viewIDs(resp serversResponse) []string {
	out := make([]string, len(resp.Servers))
	for i, sv := range resp.Servers {
		out[i] = sv.ID
	}
	return out
}

func TestServersDefaultView(t *testing.T) {
	api := threeServerAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodGet, "/api/servers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp serversResponse
	decodeBody(t, rec, &resp)

	// Defaults hide unreachable, outdated and password-protected rows.
	require.Equal(t, 1, resp.Total)
	sv := resp.Servers[0]
	assert.Equal(t, "srv-a", sv.ID)
	assert.Equal(t, "Alpha Keep", sv.Name)
	assert.Equal(t, "dunes", sv.Map)
	assert.Equal(t, "official", sv.Kind)
	assert.Equal(t, "publisher", sv.Ownership)
	assert.Equal(t, "official", sv.Mode)
	assert.Equal(t, "eu", sv.Region)
	assert.Equal(t, "valid", sv.Validity)
	assert.Equal(t, uint32(100), sv.BuildID)
	assert.Equal(t, 12, sv.Players)
	assert.Equal(t, 32, sv.MaxPlayers)
	assert.True(t, sv.BattlEye)
	assert.False(t, sv.LastSeen.IsZero())
}

func TestServersFilterParams(t *testing.T) {
	api := threeServerAPI(t)
	h := api.Handler()

	wide := "include_invalid=true&include_password=true"
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"everything sorted desc", wide + "&sort=-Name", []string{"srv-b", "srv-c", "srv-a"}},
		{"type private", wide + "&type=private", []string{"srv-c", "srv-b"}},
		{"mode hosted", wide + "&mode=hosted", []string{"srv-b"}},
		{"region oceania", wide + "&region=oceania", []string{"srv-c"}},
		{"build match", wide + "&build=999", []string{"srv-c"}},
		{"battleye only", wide + "&battleye=true", []string{"srv-a"}},
		{"no battleye", wide + "&battleye=false", []string{"srv-c", "srv-b"}},
		{"name substring", "name=alpha", []string{"srv-a"}},
		{"map substring", wide + "&map=mar", []string{"srv-c"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, "/api/servers?"+tc.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp serversResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tc.want, viewIDs(resp))
		})
	}
}

func TestServersRejectsBadParams(t *testing.T) {
	api := threeServerAPI(t)
	h := api.Handler()

	cases := []struct {
		query string
		param string
	}{
		{"mode=warpspeed", "mode"},
		{"region=moon", "region"},
		{"type=clan", "type"},
		{"build=xyz", "build"},
		{"battleye=maybe", "battleye"},
		{"include_invalid=banana", "include_invalid"},
		{"sort=players", "sort"},
	}

	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, "/api/servers?"+tc.query, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			decodeBody(t, rec, &resp)
			assert.Contains(t, resp.Error, tc.param)
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	portA := startStub(t, &query.Status{BuildID: 100, Name: "Alpha Keep", Map: "dunes"})
	master := serveRoster(t, entry("srv-a", "official", "publisher", "eu", portA))
	api, _ := newTestAPI(t, master.URL)

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp refreshResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Stats.Total)
	assert.Equal(t, 1, resp.Stats.Fresh)
}

func TestRefreshEndpointBadGateway(t *testing.T) {
	master := serveRoster(t)
	api, _ := newTestAPI(t, master.URL)
	master.Close()

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

func TestStatusEndpoint(t *testing.T) {
	portA := startStub(t, &query.Status{BuildID: 100, Name: "Alpha Keep", Map: "dunes"})
	master := serveRoster(t, entry("srv-a", "official", "publisher", "eu", portA))
	api, b := newTestAPI(t, master.URL)
	h := api.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var before statusResponse
	decodeBody(t, rec, &before)
	assert.Zero(t, before.Servers)
	assert.Zero(t, before.LastRefresh.Total)

	_, _, err := b.Refresh(context.Background())
	require.NoError(t, err)

	rec = doRequest(t, h, http.MethodGet, "/api/status", nil)
	var after statusResponse
	decodeBody(t, rec, &after)
	assert.Equal(t, 1, after.Servers)
	assert.Equal(t, 1, after.LastRefresh.Total)
	assert.False(t, after.LastRefresh.At.IsZero())
}

func TestPingEndpoint(t *testing.T) {
	port := startStub(t, &query.Status{
		BuildID: 100, Players: 7, MaxPlayers: 24,
		Name: "Echo Ridge", Map: "foothills",
	})
	api, _ := newTestAPI(t, serveRoster(t).URL)
	h := api.Handler()

	t.Run("responding server", func(t *testing.T) {
		target := "/api/ping/" + url.PathEscape(fmt.Sprintf("127.0.0.1:%d", port))
		rec := doRequest(t, h, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var view serverView
		decodeBody(t, rec, &view)
		assert.Equal(t, "Echo Ridge", view.Name)
		assert.Equal(t, "foothills", view.Map)
		assert.Equal(t, 7, view.Players)
		assert.Equal(t, uint32(100), view.BuildID)
		assert.Equal(t, "valid", view.Validity)
		assert.False(t, view.LastSeen.IsZero())
	})

	t.Run("silent server", func(t *testing.T) {
		silent := startStub(t, nil)
		target := "/api/ping/" + url.PathEscape(fmt.Sprintf("127.0.0.1:%d", silent))
		rec := doRequest(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("bad address", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/ping/not-an-address", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFavoritesEndpoints(t *testing.T) {
	master := serveRoster(t)
	api, _ := newTestAPI(t, master.URL)
	h := api.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/favorites", favoriteRequest{Address: "no-port"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/favorites", bytes.NewBufferString("{broken"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	addr := "192.0.2.1:7777"
	rec = doRequest(t, h, http.MethodPost, "/api/favorites", favoriteRequest{Address: addr, Name: "Keeper"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/favorites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed favoritesResponse
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Favorites, 1)
	assert.Equal(t, "Keeper", listed.Favorites[0].Name)

	target := "/api/favorites/" + url.PathEscape(addr)
	rec = doRequest(t, h, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/favorites", nil)
	assert.Contains(t, rec.Body.String(), `"favorites":[]`)
}

func TestSessionsEndpoints(t *testing.T) {
	portA := startStub(t, &query.Status{BuildID: 100, Name: "Alpha Keep", Map: "dunes"})
	master := serveRoster(t, entry("srv-a", "official", "publisher", "eu", portA))
	api, b := newTestAPI(t, master.URL)
	h := api.Handler()

	_, _, err := b.Refresh(context.Background())
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodGet, "/api/sessions/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/sessions", sessionRequest{Address: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	addr := fmt.Sprintf("127.0.0.1:%d", portA)
	rec = doRequest(t, h, http.MethodPost, "/api/sessions", sessionRequest{Address: addr})
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess domain.Session
	decodeBody(t, rec, &sess)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, addr, sess.Address)
	assert.Equal(t, "Alpha Keep", sess.ServerName)

	rec = doRequest(t, h, http.MethodGet, "/api/sessions/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var last domain.Session
	decodeBody(t, rec, &last)
	assert.Equal(t, sess.ID, last.ID)

	rec = doRequest(t, h, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed sessionsResponse
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, addr, listed.Sessions[0].Address)

	rec = doRequest(t, h, http.MethodGet, "/api/sessions?limit=oops", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

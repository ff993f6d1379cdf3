// Package masterlist retrieves the directory service's roster of known
// servers. A fetch is atomic: either the whole roster decodes into fresh
// records or the refresh cycle gets an error, never a partial list.
package masterlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"server-browser/internal/config"
	"server-browser/internal/constants"
	"server-browser/internal/domain"
)

var (
	// ErrUnreachable marks a transport-level failure talking to the
	// directory service.
	ErrUnreachable = errors.New("master list unreachable")
	// ErrMalformed marks a payload that does not decode into a full
	// roster.
	ErrMalformed = errors.New("malformed master list payload")
	// ErrService marks an error reported by the directory service
	// itself.
	ErrService = errors.New("master list service error")
)

type Fetcher struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewFetcher(cfg *config.Config, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		url: cfg.MasterURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         constants.FetchTimeout,
			WriteTimeout:        constants.FetchTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type masterResponse struct {
	Servers []masterEntry `json:"servers"`
	Error   string        `json:"error,omitempty"`
}

type masterEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Kind      string `json:"kind"`
	Ownership string `json:"ownership"`
	Region    string `json:"region"`
}

// Fetch downloads the current roster and decodes it into fresh records:
// identity populated, status absent, validity invalid until a query
// succeeds. Any undecodable entry fails the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]domain.Server, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.FetchTimeout)
	}
	if err := f.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrService, resp.StatusCode())
	}

	var payload masterResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrService, payload.Error)
	}

	records := make([]domain.Server, 0, len(payload.Servers))
	for i, entry := range payload.Servers {
		rec, err := entry.record()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
		}
		records = append(records, rec)
	}

	f.logger.Debug().Int("servers", len(records)).Msg("master list fetched")
	return records, nil
}

func (e masterEntry) record() (domain.Server, error) {
	if e.ID == "" {
		return domain.Server{}, fmt.Errorf("missing id")
	}
	if e.Host == "" {
		return domain.Server{}, fmt.Errorf("missing host")
	}
	if e.Port < 1 || e.Port > 65535 {
		return domain.Server{}, fmt.Errorf("invalid port %d", e.Port)
	}
	kind, err := domain.ParseKind(e.Kind)
	if err != nil {
		return domain.Server{}, err
	}
	ownership, err := domain.ParseOwnership(e.Ownership)
	if err != nil {
		return domain.Server{}, err
	}
	region, err := domain.ParseRegion(e.Region)
	if err != nil {
		return domain.Server{}, err
	}
	return domain.Server{
		ID:        e.ID,
		Host:      e.Host,
		Port:      e.Port,
		Kind:      kind,
		Ownership: ownership,
		Region:    region,
		Name:      e.Name,
		Validity:  domain.ValidityInvalid,
	}, nil
}

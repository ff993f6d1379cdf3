package query

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"server-browser/internal/config"
	"server-browser/internal/constants"
	"server-browser/internal/domain"
)

// Result pairs an input position with its updated record. A batch that
// runs to completion yields exactly one Result per input record.
type Result struct {
	Index  int
	Record domain.Server
}

// Client exchanges status datagrams with game servers, many at a time.
// The concurrency cap, per-exchange timeout, retry count and outbound
// send rate all come from configuration.
type Client struct {
	logger      zerolog.Logger
	timeout     time.Duration
	retries     int
	concurrency int64
	localBuild  uint32
	limiter     *rate.Limiter
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		logger:      logger,
		timeout:     cfg.QueryTimeout,
		retries:     cfg.QueryRetries,
		concurrency: int64(cfg.QueryConcurrency),
		localBuild:  cfg.LocalBuildID,
		limiter:     rate.NewLimiter(rate.Limit(cfg.QueryRate), cfg.QueryRate),
	}
}

// QueryAll interrogates every record concurrently and streams one Result
// per input as exchanges settle, in no particular order. The channel
// closes once every input has been resolved or the context is done;
// after cancellation no further results are delivered. Callers must
// drain the channel or cancel the context.
func (c *Client) QueryAll(ctx context.Context, records []domain.Server) <-chan Result {
	results := make(chan Result)

	go func() {
		defer close(results)

		gate := newCapGate(c.concurrency)
		g, gctx := errgroup.WithContext(ctx)
		for i := range records {
			g.Go(func() error {
				if err := gate.acquire(gctx); err != nil {
					return err
				}
				rec := records[i]
				err := c.query(gctx, &rec)
				shrunk, remaining := gate.release(isFDExhaustion(err))
				if shrunk {
					c.logger.Warn().
						Str("addr", rec.Addr()).
						Int64("concurrency", remaining).
						Msg("descriptor exhaustion, shrinking query concurrency")
				} else if err != nil && gctx.Err() == nil {
					c.logger.Debug().Str("addr", rec.Addr()).Err(err).Msg("status query failed")
				}

				// A cancelled batch delivers nothing more.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				select {
				case results <- Result{Index: i, Record: rec}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		_ = g.Wait()
	}()

	return results
}

// QueryOne runs the full exchange cycle (send, wait, retries) for a
// single record and returns the updated copy. The returned error is the
// final attempt's failure when the record ends up demoted.
func (c *Client) QueryOne(ctx context.Context, rec domain.Server) (domain.Server, error) {
	err := c.query(ctx, &rec)
	return rec, err
}

// query refreshes rec in place. On success the status fields, Ping and
// LastSeen are set and validity is recomputed against the local build.
// On failure the record keeps its identity and stale fields but is
// demoted to invalid.
func (c *Client) query(ctx context.Context, rec *domain.Server) error {
	addr := rec.Addr()
	token, err := newToken()
	if err != nil {
		rec.Validity = domain.ValidityInvalid
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		status, rtt, err := c.exchange(ctx, addr, token)
		if err == nil {
			rec.Name = status.Name
			rec.Map = status.Map
			rec.BuildID = status.BuildID
			rec.PasswordProtected = status.PasswordProtected
			rec.BattlEye = status.BattlEye
			rec.Mods = status.Mods
			rec.Players = status.Players
			rec.MaxPlayers = status.MaxPlayers
			rec.Ping = rtt
			rec.LastSeen = time.Now()
			rec.RecomputeValidity(c.localBuild)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || isFDExhaustion(err) {
			break
		}
	}

	rec.Validity = domain.ValidityInvalid
	return lastErr
}

// exchange performs one attempt: dial, send the request, then read
// datagrams until a token-matching response decodes or the attempt
// window lapses. Spoofed, stale and corrupt datagrams are discarded
// without consuming the attempt.
func (c *Client) exchange(ctx context.Context, addr string, token uint32) (Status, time.Duration, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return Status{}, 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// Unblock the pending read as soon as the batch is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if _, err := conn.Write(EncodeRequest(token)); err != nil {
		return Status{}, 0, fmt.Errorf("send %s: %w", addr, err)
	}
	if err := conn.SetReadDeadline(start.Add(c.timeout)); err != nil {
		return Status{}, 0, fmt.Errorf("deadline %s: %w", addr, err)
	}

	// One extra byte so an oversized datagram is detectable.
	buf := make([]byte, constants.MaxDatagramSize+1)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Status{}, 0, ctx.Err()
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return Status{}, 0, fmt.Errorf("%w: %s", ErrTimeout, addr)
			}
			return Status{}, 0, fmt.Errorf("read %s: %w", addr, err)
		}
		status, err := DecodeResponse(buf[:n], token)
		if err != nil {
			continue
		}
		return status, time.Since(start), nil
	}
}

// capGate is a concurrency gate whose capacity shrinks when the OS runs
// out of descriptors: instead of returning the reporting worker's
// permit, it is consumed. At least one permit always survives.
type capGate struct {
	sem *semaphore.Weighted
	mu  sync.Mutex
	cap int64
}

func newCapGate(n int64) *capGate {
	return &capGate{sem: semaphore.NewWeighted(n), cap: n}
}

func (g *capGate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *capGate) release(shrink bool) (shrunk bool, remaining int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if shrink && g.cap > constants.MinQueryConcurrency {
		g.cap--
		return true, g.cap
	}
	g.sem.Release(1)
	return false, g.cap
}

func isFDExhaustion(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

func newToken() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("token: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

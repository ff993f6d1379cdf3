package query

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-browser/internal/config"
	"server-browser/internal/domain"
)

func testClient(t *testing.T, concurrency int, timeout time.Duration, retries int) *Client {
	t.Helper()
	return NewClient(&config.Config{
		LocalBuildID:     100,
		QueryConcurrency: concurrency,
		QueryTimeout:     timeout,
		QueryRetries:     retries,
		QueryRate:        100000,
	}, zerolog.Nop())
}

// startStubServer answers status requests on a loopback socket. handler
// receives the request token and returns the datagram to send back, or
// nil to stay silent.
func startStubServer(t *testing.T, handler func(token uint32) []byte) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			token, err := DecodeRequest(buf[:n])
			if err != nil {
				continue
			}
			if resp := handler(token); resp != nil {
				_, _ = conn.WriteToUDP(resp, raddr)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func respondWith(t *testing.T, status Status) func(uint32) []byte {
	return func(token uint32) []byte {
		data, err := EncodeResponse(token, status)
		require.NoError(t, err)
		return data
	}
}

func loopbackRecord(id string, port int) domain.Server {
	return domain.Server{
		ID:   id,
		Host: "127.0.0.1",
		Port: port,
		Kind: domain.KindPrivate,
	}
}

func TestQueryOneSuccess(t *testing.T) {
	status := Status{
		BuildID:           100,
		Players:           5,
		MaxPlayers:        40,
		PasswordProtected: true,
		BattlEye:          true,
		Name:              "Alpha Outpost",
		Map:               "marsh",
		Mods:              []string{"trebuchet"},
	}
	port := startStubServer(t, respondWith(t, status))

	c := testClient(t, 4, time.Second, 0)
	rec, err := c.QueryOne(context.Background(), loopbackRecord("srv-1", port))
	require.NoError(t, err)

	assert.Equal(t, "Alpha Outpost", rec.Name)
	assert.Equal(t, "marsh", rec.Map)
	assert.Equal(t, uint32(100), rec.BuildID)
	assert.Equal(t, 5, rec.Players)
	assert.Equal(t, 40, rec.MaxPlayers)
	assert.True(t, rec.PasswordProtected)
	assert.True(t, rec.BattlEye)
	assert.Equal(t, []string{"trebuchet"}, rec.Mods)
	assert.True(t, rec.Queried())
	assert.Greater(t, rec.Ping, time.Duration(0))
	assert.Equal(t, domain.ValidityValid, rec.Validity)

	// Identity is untouched by a status update.
	assert.Equal(t, "srv-1", rec.ID)
	assert.Equal(t, domain.KindPrivate, rec.Kind)
}

func TestQueryOneOutdatedBuild(t *testing.T) {
	port := startStubServer(t, respondWith(t, Status{BuildID: 999, Name: "Bar"}))

	c := testClient(t, 4, time.Second, 0)
	rec, err := c.QueryOne(context.Background(), loopbackRecord("srv-1", port))
	require.NoError(t, err)
	assert.Equal(t, domain.ValidityOutdated, rec.Validity)
	assert.Equal(t, uint32(999), rec.BuildID)
}

func TestQueryOneTimeoutDemotes(t *testing.T) {
	port := startStubServer(t, func(uint32) []byte { return nil })

	c := testClient(t, 4, 100*time.Millisecond, 1)
	in := loopbackRecord("srv-1", port)
	in.Name = "Last Known"

	rec, err := c.QueryOne(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, domain.ValidityInvalid, rec.Validity)
	assert.False(t, rec.Queried())
	// Stale fields stay visible on a demoted record.
	assert.Equal(t, "Last Known", rec.Name)
}

func TestQueryOneTokenMismatchTreatedAsTimeout(t *testing.T) {
	port := startStubServer(t, func(token uint32) []byte {
		data, _ := EncodeResponse(token+1, Status{Name: "Spoof"})
		return data
	})

	c := testClient(t, 4, 100*time.Millisecond, 0)
	rec, err := c.QueryOne(context.Background(), loopbackRecord("srv-1", port))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, domain.ValidityInvalid, rec.Validity)
	assert.NotEqual(t, "Spoof", rec.Name)
}

func TestQueryOneGarbageTreatedAsTimeout(t *testing.T) {
	port := startStubServer(t, func(uint32) []byte { return []byte{0x01, 0x02, 0x03} })

	c := testClient(t, 4, 100*time.Millisecond, 0)
	rec, err := c.QueryOne(context.Background(), loopbackRecord("srv-1", port))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, domain.ValidityInvalid, rec.Validity)
}

func TestQueryOneRetriesWithOneToken(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var tokens []uint32

	port := startStubServer(t, func(token uint32) []byte {
		mu.Lock()
		tokens = append(tokens, token)
		mu.Unlock()
		if calls.Add(1) == 1 {
			return nil // first attempt goes unanswered
		}
		data, _ := EncodeResponse(token, Status{BuildID: 100, Name: "Second Try"})
		return data
	})

	c := testClient(t, 4, 150*time.Millisecond, 2)
	rec, err := c.QueryOne(context.Background(), loopbackRecord("srv-1", port))
	require.NoError(t, err)
	assert.Equal(t, "Second Try", rec.Name)
	assert.Equal(t, domain.ValidityValid, rec.Validity)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(tokens), 2)
	for _, tok := range tokens[1:] {
		assert.Equal(t, tokens[0], tok, "retries must reuse the round's token")
	}
}

func TestQueryAllCompleteness(t *testing.T) {
	const n = 9
	respondingPort := startStubServer(t, respondWith(t, Status{BuildID: 100, Name: "Up"}))
	silentPort := startStubServer(t, func(uint32) []byte { return nil })

	records := make([]domain.Server, 0, n)
	for i := 0; i < n; i++ {
		port := respondingPort
		if i%3 == 0 { // 3 of 9 never respond
			port = silentPort
		}
		records = append(records, loopbackRecord(string(rune('a'+i)), port))
	}

	c := testClient(t, 4, 100*time.Millisecond, 1)
	seen := make(map[int]domain.Server)
	for res := range c.QueryAll(context.Background(), records) {
		_, dup := seen[res.Index]
		require.False(t, dup, "index %d resolved twice", res.Index)
		seen[res.Index] = res.Record
	}

	require.Len(t, seen, n, "every address must resolve exactly once")
	degraded := 0
	for i, rec := range seen {
		if i%3 == 0 {
			assert.Equal(t, domain.ValidityInvalid, rec.Validity)
			degraded++
		} else {
			assert.Equal(t, domain.ValidityValid, rec.Validity)
			assert.Equal(t, "Up", rec.Name)
		}
	}
	assert.Equal(t, 3, degraded)
}

func TestQueryAllEmptyInput(t *testing.T) {
	c := testClient(t, 4, time.Second, 0)

	count := 0
	for range c.QueryAll(context.Background(), nil) {
		count++
	}
	assert.Zero(t, count)
}

func TestQueryAllCancellation(t *testing.T) {
	silentPort := startStubServer(t, func(uint32) []byte { return nil })

	records := make([]domain.Server, 20)
	for i := range records {
		records[i] = loopbackRecord(string(rune('a'+i)), silentPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := testClient(t, 8, 5*time.Second, 0)
	results := c.QueryAll(ctx, records)

	time.Sleep(50 * time.Millisecond)
	cancel()

	start := time.Now()
	received := 0
	for range results {
		received++
	}
	assert.Zero(t, received, "abandoned exchanges must not deliver results")
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must release pending reads promptly")
}

func TestQueryAllCancelAfterPartialDrain(t *testing.T) {
	okPort := startStubServer(t, respondWith(t, Status{BuildID: 100, Name: "Up"}))
	silentPort := startStubServer(t, func(uint32) []byte { return nil })

	records := make([]domain.Server, 0, 10)
	for i := 0; i < 4; i++ {
		records = append(records, loopbackRecord(string(rune('a'+i)), okPort))
	}
	for i := 4; i < 10; i++ {
		records = append(records, loopbackRecord(string(rune('a'+i)), silentPort))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := testClient(t, 10, 5*time.Second, 0)
	results := c.QueryAll(ctx, records)

	received := 0
	for range results {
		received++
		if received == 4 {
			cancel()
			break
		}
	}
	// Drain whatever the close leaves behind; silent exchanges were
	// abandoned, so nothing further arrives.
	start := time.Now()
	for range results {
		received++
	}
	assert.Equal(t, 4, received)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCapGateShrink(t *testing.T) {
	ctx := context.Background()
	g := newCapGate(2)
	require.NoError(t, g.acquire(ctx))
	require.NoError(t, g.acquire(ctx))

	shrunk, remaining := g.release(true)
	assert.True(t, shrunk)
	assert.Equal(t, int64(1), remaining)

	// The floor holds: the last permit is returned, not consumed.
	shrunk, remaining = g.release(true)
	assert.False(t, shrunk)
	assert.Equal(t, int64(1), remaining)

	require.NoError(t, g.acquire(ctx))
	shrunk, remaining = g.release(false)
	assert.False(t, shrunk)
	assert.Equal(t, int64(1), remaining)
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/config"
	"github.com/elys-network/votesnap/internal/engine"
	"github.com/elys-network/votesnap/internal/state"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolA   = common.HexToAddress("0x000000000000000000000000000000000000aa01")
	wrapper = common.HexToAddress("0x000000000000000000000000000000000000a001")
	usdc    = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
)

type fakeEngine struct {
	ranked     []types.RankedPool
	positions  map[common.Address]types.Positions
	active     map[common.Address][]common.Address
	submission *types.Submission
	tick       *types.TickSnapshot
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{MaxPoolsLength: 10, TotalVoteWeight: sdkmath.NewInt(1000), TopVotesWeight: sdkmath.NewInt(60)}
}
func (f *fakeEngine) Votes() []types.RankedPool    { return f.ranked }
func (f *fakeEngine) TopVotes() []types.RankedPool { return f.ranked }
func (f *fakeEngine) PrepareVote() types.PreparedVote {
	return types.PreparedVote{Pools: []common.Address{poolA}, Weights: []sdkmath.Int{sdkmath.NewInt(1000)}, TotalVoteWeight: sdkmath.NewInt(1000)}
}
func (f *fakeEngine) LastSubmission() (types.Submission, bool) {
	if f.submission == nil {
		return types.Submission{}, false
	}
	return *f.submission, true
}
func (f *fakeEngine) PoolWeight(pool common.Address) types.PoolWeight {
	return types.PoolWeight{Pool: pool, Signed: sdkmath.NewInt(60), Unsigned: sdkmath.NewInt(60)}
}
func (f *fakeEngine) VotesByAccount(account common.Address) types.VotesData {
	return f.positions[account].Votes
}
func (f *fakeEngine) PositionsOf(account common.Address) (types.Positions, error) {
	p, ok := f.positions[account]
	if !ok {
		return types.Positions{}, errors.New("token registry unavailable")
	}
	return p, nil
}
func (f *fakeEngine) AllowlistEntry(token common.Address) types.AllowlistEntry {
	return types.AllowlistEntry{Token: token, ExternallyListed: true, Allowed: true}
}
func (f *fakeEngine) Wrappers() []common.Address { return []common.Address{wrapper} }
func (f *fakeEngine) ActiveTokens(w common.Address) ([]common.Address, error) {
	tokens, ok := f.active[w]
	if !ok {
		return nil, types.ErrUnknownPool
	}
	return tokens, nil
}
func (f *fakeEngine) StoredAmount(token common.Address) (sdkmath.Int, error) {
	return sdkmath.NewInt(77), nil
}
func (f *fakeEngine) Parameters() types.ProtocolParameters { return config.DefaultProtocolParameters }
func (f *fakeEngine) LatestTick() (types.TickSnapshot, bool) {
	if f.tick == nil {
		return types.TickSnapshot{}, false
	}
	return *f.tick, true
}

type fakeHistory struct {
	pingErr error
	ticks   []types.TickSnapshot
}

func (h *fakeHistory) Ping(context.Context) error { return h.pingErr }
func (h *fakeHistory) RecentTicks(limit int) ([]types.TickSnapshot, error) {
	if limit < len(h.ticks) {
		return h.ticks[:limit], nil
	}
	return h.ticks, nil
}
func (h *fakeHistory) DistributionTotals() ([]state.TokenTotals, error) {
	return []state.TokenTotals{{Token: usdc, Distributions: 2, Amount: "1000"}}, nil
}

func newTestEngine() *fakeEngine {
	return &fakeEngine{
		ranked: []types.RankedPool{{Rank: 0, Pool: poolA, Weight: sdkmath.NewInt(60)}},
		positions: map[common.Address]types.Positions{
			alice: {
				Account:     alice,
				BaseBalance: sdkmath.NewInt(1000),
				Votes: types.VotesData{
					WeightUsed: sdkmath.NewInt(60),
					Votes:      []types.PoolVote{{Pool: poolA, Weight: sdkmath.NewInt(60)}},
				},
			},
		},
		active: map[common.Address][]common.Address{wrapper: {usdc}},
	}
}

func get(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rr := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]interface{}{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHealth(t *testing.T) {
	e := newTestEngine()
	ws := NewWebServer("", e, nil)

	rr, body := get(t, ws, "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	e.tick = &types.TickSnapshot{TickNumber: 3, Timestamp: time.Now(), Errors: []string{"fees: boom"}}
	rr, body = get(t, ws, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestHealthReportsDatabase(t *testing.T) {
	ws := NewWebServer("", newTestEngine(), &fakeHistory{pingErr: errors.New("connection refused")})
	rr, body := get(t, ws, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	status := body["engine_status"].(map[string]interface{})
	assert.Equal(t, "unreachable", status["database"])
}

func TestPositions(t *testing.T) {
	ws := NewWebServer("", newTestEngine(), nil)

	rr, body := get(t, ws, "/api/positions/"+alice.Hex())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1000", body["base_balance"])
	votes := body["votes"].(map[string]interface{})
	assert.Equal(t, "60", votes["weight_used"])

	rr, _ = get(t, ws, "/api/positions/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = get(t, ws, "/api/positions/"+poolA.Hex())
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestVotingViews(t *testing.T) {
	ws := NewWebServer("", newTestEngine(), nil)

	rr, body := get(t, ws, "/api/votes")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, body = get(t, ws, "/api/top-pools")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "60", body["top_votes_weight"])

	rr, body = get(t, ws, "/api/prepared-vote")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []interface{}{"1000"}, body["weights"])

	rr, _ = get(t, ws, "/api/submission")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = get(t, ws, "/api/accounts/"+alice.Hex()+"/votes")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["votes"], 1)
}

func TestActiveTokens(t *testing.T) {
	ws := NewWebServer("", newTestEngine(), nil)

	rr, body := get(t, ws, "/api/tokens/"+wrapper.Hex())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, _ = get(t, ws, "/api/tokens/"+poolA.Hex())
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTickHistory(t *testing.T) {
	e := newTestEngine()
	ws := NewWebServer("", e, nil)

	rr, _ := get(t, ws, "/api/ticks/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr, _ = get(t, ws, "/api/ticks")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	e.tick = &types.TickSnapshot{TickNumber: 9, TickID: "abc"}
	history := &fakeHistory{ticks: []types.TickSnapshot{{TickNumber: 9}, {TickNumber: 8}, {TickNumber: 7}}}
	ws = NewWebServer("", e, history)

	rr, body := get(t, ws, "/api/ticks/latest")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 9, body["tick_number"])

	rr, body = get(t, ws, "/api/ticks?limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, body["count"])

	rr, body = get(t, ws, "/api/distributions/totals")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["totals"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	ws := NewWebServer("", newTestEngine(), nil)
	get(t, ws, "/api/status")

	rr := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "votesnap_http_requests_total")
}

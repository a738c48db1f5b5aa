package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walletbridge "github.com/x402wallet/walletbridge"
	xhttp "github.com/x402wallet/walletbridge/http"
	"github.com/x402wallet/walletbridge/store"
)

// fakeMechanism mints canned credentials with a validBefore derived from
// the injected clock.
type fakeMechanism struct {
	now  func() time.Time
	fail bool
}

func (m *fakeMechanism) Scheme() string { return walletbridge.SchemeExact }

func (m *fakeMechanism) CreatePaymentPayload(_ context.Context, version int, requirements walletbridge.PaymentRequirement) (walletbridge.PaymentPayload, error) {
	if m.fail {
		return walletbridge.PaymentPayload{}, fmt.Errorf("user rejected signing")
	}
	return walletbridge.PaymentPayload{
		X402Version: version,
		Scheme:      walletbridge.SchemeExact,
		Network:     requirements.Network,
		Payload: map[string]interface{}{
			"signature": "0xsigned",
			"authorization": map[string]interface{}{
				"validBefore": strconv.FormatInt(m.now().Unix()+300, 10),
			},
		},
	}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	counters map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counters: make(map[string]int)}
}

func (r *countingRecorder) IncCounter(name string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

func (r *countingRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func (r *countingRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

type fixture struct {
	server       *httptest.Server
	storage      *store.MemoryStorage
	mechanism    *fakeMechanism
	recorder     *countingRecorder
	orchestrator *Orchestrator
	now          *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Unix(1_760_000_000, 0)
	f := &fixture{now: &now}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(xhttp.PaymentHeader) == "" {
			body, _ := json.Marshal(walletbridge.PaymentRequired{
				X402Version: 1,
				Accepts: []walletbridge.PaymentRequirement{{
					Scheme:            "exact",
					Network:           "base-sepolia",
					Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
					PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
					MaxAmountRequired: "10000",
					MaxTimeoutSeconds: 300,
				}},
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(body)
			return
		}

		if _, err := walletbridge.DecodePaymentHeader(r.Header.Get(xhttp.PaymentHeader)); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		receipt, _ := xhttp.EncodeSettleReceipt(walletbridge.SettleReceipt{
			Success:     true,
			Transaction: "0xabc",
			Network:     "base-sepolia",
		})
		w.Header().Set(xhttp.SettleReceiptHeader, receipt)
		w.Write([]byte(`{"content":"unlocked"}`))
	}))
	t.Cleanup(f.server.Close)

	clock := func() time.Time { return *f.now }
	f.storage = store.NewMemoryStorage()
	f.mechanism = &fakeMechanism{now: clock}
	f.recorder = newCountingRecorder()
	f.orchestrator = f.newOrchestrator(clock)
	return f
}

// newOrchestrator builds an orchestrator over the fixture's storage, so
// tests can simulate a fresh UI context picking up persisted state.
func (f *fixture) newOrchestrator(clock func() time.Time) *Orchestrator {
	client := walletbridge.NewClient(
		walletbridge.WithScheme(walletbridge.FamilyEVM, f.mechanism),
	)
	return NewOrchestrator(client,
		store.NewPendingStore(f.storage, store.WithClock(clock)),
		WithHTTPClient(f.server.Client()),
		WithNetworks(func(context.Context) ([]walletbridge.Network, error) {
			return []walletbridge.Network{"base-sepolia"}, nil
		}),
		WithRecentStore(store.NewRecentStore(f.storage)),
		WithHistoryStore(store.NewHistoryStore(f.storage)),
		WithRecorder(f.recorder),
		WithClock(clock),
	)
}

func TestFlowDiscoverApproveSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, discovery, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, http.StatusPaymentRequired, discovery.StatusCode)
	assert.Equal(t, "0.01", challenge.Amount)
	assert.Equal(t, 0, challenge.AcceptIndex)

	// nothing persisted until the credential is minted
	_, found, err := f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	assert.False(t, found)

	signed, err := f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)
	assert.Equal(t, store.StepSigned, signed.Step)
	assert.NotEmpty(t, signed.XPaymentHeader)
	assert.Equal(t, f.now.Unix()+300, signed.ValidBefore)
	assert.Equal(t, 1, f.recorder.count("flow_approved"))

	result, err := f.orchestrator.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	require.NotNil(t, result.Receipt)
	assert.True(t, result.Receipt.Success)
	assert.Equal(t, 1, f.recorder.count("flow_settled"))

	// slot cleared; nothing left to resume
	_, found, err = f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	assert.False(t, found)

	history, err := store.NewHistoryStore(f.storage).List()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.HistoryStatusSettled, history[0].Status)
	assert.Equal(t, "0.01", history[0].Amount)
}

func TestFlowResumeSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	_, err = f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	// a fresh orchestrator over the same storage stands in for a new UI
	// context after the old one was destroyed
	clock := func() time.Time { return *f.now }
	reopened := f.newOrchestrator(clock)

	pending, found, err := reopened.Resume(f.server.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.StepSigned, pending.Step)

	result, err := reopened.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestFlowApproveFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)

	f.mechanism.fail = true
	_, err = f.orchestrator.Approve(ctx, challenge)
	require.Error(t, err)
	assert.Equal(t, 1, f.recorder.count("header_build_error"))

	// a rejected signature leaves no record behind
	_, haveRecord, err := f.storage.Get(store.KeyPendingTransaction)
	require.NoError(t, err)
	assert.False(t, haveRecord)

	f.mechanism.fail = false
	signed, err := f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)
	assert.Equal(t, store.StepSigned, signed.Step)
}

func TestFlowRediscoverMidFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	signed, err := f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	// probing the same resource again must not disturb the signed flow
	again, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	require.NotNil(t, again)

	pending, found, err := f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.StepSigned, pending.Step)
	assert.Equal(t, signed.XPaymentHeader, pending.XPaymentHeader)
}

func TestFlowSettleTransportErrorKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	signed, err := f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	// the send never reaches a server
	broken := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	broken.Close()
	signed.Resource = broken.URL
	require.NoError(t, store.NewPendingStore(f.storage, store.WithClock(func() time.Time { return *f.now })).Save(signed))

	_, err = f.orchestrator.Settle(ctx)
	require.Error(t, err)

	// the credential survives for a resumed retry at the signed step
	pending, found, err := f.orchestrator.Resume(broken.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.StepSigned, pending.Step)
	assert.Equal(t, signed.XPaymentHeader, pending.XPaymentHeader)
	assert.Equal(t, 0, f.recorder.count("flow_settled"))
}

func TestFlowResumeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	_, err = f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	*f.now = f.now.Add(31 * time.Minute)

	_, found, err := f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, f.recorder.count("flow_expired"))
}

func TestFlowResumeDifferentResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	_, err = f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	_, found, err := f.orchestrator.Resume("https://other.example/item")
	require.NoError(t, err)
	assert.False(t, found)

	// the original flow is still intact
	_, found, err = f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestFlowAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orchestrator.Abandon()) // empty slot is a no-op

	challenge, _, err := f.orchestrator.Discover(ctx, f.server.URL, nil)
	require.NoError(t, err)
	_, err = f.orchestrator.Approve(ctx, challenge)
	require.NoError(t, err)

	require.NoError(t, f.orchestrator.Abandon())
	assert.Equal(t, 1, f.recorder.count("flow_abandoned"))

	_, found, err := f.orchestrator.Resume(f.server.URL)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlowDiscoverFreeResource(t *testing.T) {
	f := newFixture(t)

	free := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("free"))
	}))
	t.Cleanup(free.Close)

	challenge, discovery, err := f.orchestrator.Discover(context.Background(), free.URL, nil)
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Equal(t, http.StatusOK, discovery.StatusCode)

	recent, err := store.NewRecentStore(f.storage).List()
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, free.URL, recent[0].URL)
}

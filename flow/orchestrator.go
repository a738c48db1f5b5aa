// Package flow orchestrates the payment lifecycle: discover a paywalled
// resource, mint a credential on approval, settle, and resume an
// interrupted flow from the persisted slot. Each step is a distinct call
// so the driving context can disappear between them.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"time"

	walletbridge "github.com/x402wallet/walletbridge"
	xhttp "github.com/x402wallet/walletbridge/http"
	"github.com/x402wallet/walletbridge/logger"
	"github.com/x402wallet/walletbridge/metrics"
	"github.com/x402wallet/walletbridge/store"
)

// NetworksFunc reports the networks the connected wallet can pay on.
// Nil or an empty result leaves selection unconstrained.
type NetworksFunc func(ctx context.Context) ([]walletbridge.Network, error)

// Orchestrator drives one payment flow at a time over the persisted
// pending slot.
type Orchestrator struct {
	client     *walletbridge.Client
	httpClient *nethttp.Client
	pending    *store.PendingStore
	recent     *store.RecentStore
	history    *store.HistoryStore
	networks   NetworksFunc
	scheme     string
	log        logger.Logger
	recorder   metrics.Recorder
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient overrides the transport used for discovery and settlement.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(o *Orchestrator) { o.httpClient = client }
}

// WithNetworks installs the wallet network reporter used for selection.
func WithNetworks(networks NetworksFunc) Option {
	return func(o *Orchestrator) { o.networks = networks }
}

// WithScheme overrides the payment scheme requested during selection.
func WithScheme(scheme string) Option {
	return func(o *Orchestrator) { o.scheme = scheme }
}

// WithRecentStore enables recent resource tracking.
func WithRecentStore(recent *store.RecentStore) Option {
	return func(o *Orchestrator) { o.recent = recent }
}

// WithHistoryStore enables payment history recording.
func WithHistoryStore(history *store.HistoryStore) Option {
	return func(o *Orchestrator) { o.history = history }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over a payment client and the
// pending slot.
func NewOrchestrator(client *walletbridge.Client, pending *store.PendingStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:     client,
		httpClient: nethttp.DefaultClient,
		pending:    pending,
		scheme:     walletbridge.SchemeExact,
		log:        logger.Noop{},
		recorder:   metrics.Noop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Challenge is the outcome of Discover when the resource demands payment.
// It carries everything Approve needs; nothing is persisted until the
// credential is minted.
type Challenge struct {
	Resource    string
	Requirement walletbridge.PaymentRequirement
	AcceptIndex int
	X402Version int
	Amount      string
	Request     *walletbridge.RequestSpec
}

// Discover probes url. A free resource returns the response with a nil
// Challenge. A 402 selects a payable requirement and returns the
// challenge for the approval surface. The persisted slot is untouched,
// so re-discovering a resource never disturbs an in-flight signed flow.
func (o *Orchestrator) Discover(ctx context.Context, url string, body json.RawMessage) (*Challenge, xhttp.Discovery, error) {
	probe := walletbridge.RequestSpec{Method: "GET"}
	discovery, err := xhttp.Discover(ctx, o.httpClient, url, probe)
	if err != nil {
		return nil, xhttp.Discovery{}, err
	}

	if o.recent != nil {
		if err := o.recent.Record(store.RecentResource{URL: url, Method: probe.Method}); err != nil {
			o.log.Warn("failed to record recent resource", map[string]any{"url": url, "error": err.Error()})
		}
	}

	if !discovery.PaymentRequired() {
		return nil, discovery, nil
	}

	var walletNetworks []walletbridge.Network
	if o.networks != nil {
		walletNetworks, err = o.networks(ctx)
		if err != nil {
			return nil, xhttp.Discovery{}, fmt.Errorf("failed to resolve wallet networks: %w", err)
		}
	}

	requirement, index, err := o.client.SelectRequirement(discovery.Requirements, walletNetworks, o.scheme)
	if err != nil {
		return nil, xhttp.Discovery{}, err
	}

	spec := walletbridge.DeriveRequestSpec(requirement, body)
	return &Challenge{
		Resource:    url,
		Requirement: requirement,
		AcceptIndex: index,
		X402Version: discovery.X402Version,
		Amount:      walletbridge.DisplayAmount(requirement),
		Request:     &spec,
	}, discovery, nil
}

// Approve mints the payment credential for a discovered challenge. The
// persisted record is created here, at the signed step, carrying the
// requirement, the request to replay, and the credential. Nothing is
// written on failure, so a rejected or failed signature leaves the
// challenge approvable again.
func (o *Orchestrator) Approve(ctx context.Context, challenge *Challenge) (store.PendingTransaction, error) {
	if challenge == nil {
		return store.PendingTransaction{}, fmt.Errorf("no challenge to approve")
	}

	version := challenge.X402Version
	if version == 0 {
		version = walletbridge.ProtocolVersion
	}

	header, err := o.client.CreatePaymentHeader(ctx, version, challenge.Requirement)
	if err != nil {
		o.recorder.IncCounter(metrics.EventHeaderBuildError, map[string]string{
			"network": string(challenge.Requirement.Network),
		})
		return store.PendingTransaction{}, fmt.Errorf("failed to create payment header: %w", err)
	}

	tx := store.PendingTransaction{
		Resource:            challenge.Resource,
		Step:                store.StepSigned,
		SelectedAcceptIndex: challenge.AcceptIndex,
		X402Version:         version,
		Requirement:         challenge.Requirement,
		Request:             challenge.Request,
		XPaymentHeader:      header,
		CreatedAt:           o.now().UnixMilli(),
	}
	if validBefore, ok := walletbridge.ParseValidBefore(header); ok {
		tx.ValidBefore = validBefore
	}

	if err := o.pending.Save(tx); err != nil {
		return store.PendingTransaction{}, fmt.Errorf("failed to persist signed transaction: %w", err)
	}

	o.recorder.IncCounter(metrics.EventFlowApproved, map[string]string{
		"network": string(tx.Requirement.Network),
		"scheme":  tx.Requirement.Scheme,
	})
	return tx, nil
}

// Settle replays the request with the minted credential and records the
// outcome. The slot is cleared once the server answers with any HTTP
// status; the credential is spent the moment the server sees it. A
// transport failure leaves the record in place, so an interrupted send
// resumes at the signed step with the same header instead of forcing a
// re-sign.
func (o *Orchestrator) Settle(ctx context.Context) (xhttp.SettlementResult, error) {
	tx, found, err := o.pending.Load()
	if err != nil {
		return xhttp.SettlementResult{}, err
	}
	if !found {
		return xhttp.SettlementResult{}, fmt.Errorf("no pending transaction to settle")
	}
	if tx.Step != store.StepSigned {
		return xhttp.SettlementResult{}, fmt.Errorf("pending transaction is at step %d, not signed", tx.Step)
	}

	spec := walletbridge.RequestSpec{Method: "GET"}
	if tx.Request != nil {
		spec = tx.Request.Clone()
	}

	result, err := xhttp.FetchWithPayment(ctx, o.httpClient, tx.Resource, spec, tx.XPaymentHeader, xhttp.RetryContext{AlreadyPaid: true})
	if err != nil {
		return xhttp.SettlementResult{}, err
	}

	if err := o.pending.Clear(); err != nil {
		return xhttp.SettlementResult{}, fmt.Errorf("failed to clear pending transaction: %w", err)
	}

	status := store.HistoryStatusSettled
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		status = store.HistoryStatusFailed
	}
	o.appendHistory(tx, status, result.StatusCode, result.Receipt)

	o.recorder.IncCounter(metrics.EventFlowSettled, map[string]string{
		"network": string(tx.Requirement.Network),
		"status":  status,
	})
	return result, nil
}

// Resume returns the persisted flow for resource, if a live one exists.
// A slot held by a different resource stays untouched; an expired slot
// is discarded by the store and reported as absent.
func (o *Orchestrator) Resume(resource string) (store.PendingTransaction, bool, error) {
	tx, found, err := o.pending.Peek()
	if err != nil || !found {
		return store.PendingTransaction{}, false, err
	}
	if o.pending.IsExpired(tx) {
		if err := o.pending.Clear(); err != nil {
			return store.PendingTransaction{}, false, err
		}
		o.recorder.IncCounter(metrics.EventFlowExpired, map[string]string{
			"network": string(tx.Requirement.Network),
		})
		return store.PendingTransaction{}, false, nil
	}
	if resource != "" && tx.Resource != resource {
		return store.PendingTransaction{}, false, nil
	}
	return tx, true, nil
}

// Abandon discards the pending flow.
func (o *Orchestrator) Abandon() error {
	tx, found, err := o.pending.Load()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := o.pending.Clear(); err != nil {
		return err
	}
	o.recorder.IncCounter(metrics.EventFlowAbandoned, map[string]string{
		"network": string(tx.Requirement.Network),
	})
	return nil
}

func (o *Orchestrator) appendHistory(tx store.PendingTransaction, status string, statusCode int, receipt *walletbridge.SettleReceipt) {
	if o.history == nil {
		return
	}
	entry := store.HistoryEntry{
		Timestamp:  o.now().UnixMilli(),
		Resource:   tx.Resource,
		Amount:     walletbridge.DisplayAmount(tx.Requirement),
		TokenName:  tx.Requirement.TokenName(),
		Network:    tx.Requirement.Network,
		Scheme:     tx.Requirement.Scheme,
		Status:     status,
		StatusCode: statusCode,
		Receipt:    receipt,
	}
	if err := o.history.Append(entry); err != nil {
		o.log.Warn("failed to append payment history", map[string]any{
			"resource": tx.Resource,
			"error":    err.Error(),
		})
	}
}

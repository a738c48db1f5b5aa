package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	walletbridge "github.com/x402wallet/walletbridge"
	"github.com/x402wallet/walletbridge/bridge"
	"github.com/x402wallet/walletbridge/logger"
)

// Operation types dispatched by the executor. The prefix selects the
// capability family.
const (
	OpEvmRequestAccounts = "evm.requestAccounts"
	OpEvmChainID         = "evm.chainId"
	OpEvmSwitchChain     = "evm.switchChain"
	OpEvmAddChain        = "evm.addChain"
	OpEvmSendTransaction = "evm.sendTransaction"
	OpEvmPersonalSign    = "evm.personalSign"
	OpEvmSignTypedData   = "evm.signTypedData"

	OpDiscoveryProviders = "discovery.providers"
	OpDiscoveryCheck     = "discovery.check"

	OpSolanaConnect          = "solana.connect"
	OpSolanaDisconnect       = "solana.disconnect"
	OpSolanaSignMessage      = "solana.signMessage"
	OpSolanaSignTransactions = "solana.signTransactions"
)

// Executor is the page-context hop: it receives capability requests from
// the relay, performs them against the wallet providers present in the
// page, and posts the reply back. It holds no per-request state beyond the
// reply it produces.
type Executor struct {
	discovery *Discovery
	solana    SolanaProvider
	log       logger.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSolanaProvider installs the page's Solana wallet object.
func WithSolanaProvider(p SolanaProvider) ExecutorOption {
	return func(e *Executor) { e.solana = p }
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(log logger.Logger) ExecutorOption {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates an executor over a provider discovery registry.
func NewExecutor(discovery *Discovery, opts ...ExecutorOption) *Executor {
	e := &Executor{
		discovery: discovery,
		log:       logger.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach subscribes the executor to a page bus. Used as the relay's
// Injector so the executor is installed exactly once per page load.
func (e *Executor) Attach(bus *bridge.Bus) {
	bus.Subscribe(func(env bridge.Envelope) {
		if env.Target != bridge.TargetPage {
			return
		}
		bus.Post(e.execute(context.Background(), env))
	})
}

// execute runs one capability request and builds its reply envelope.
func (e *Executor) execute(ctx context.Context, env bridge.Envelope) bridge.Envelope {
	result, err := e.dispatch(ctx, env.Op, env.Payload)
	if err != nil {
		code := 0
		var provErr *walletbridge.ProviderError
		if errors.As(err, &provErr) {
			code = provErr.Code
		}
		e.log.Warn("capability failed", map[string]any{
			"op":            env.Op,
			"correlationId": env.CorrelationID,
			"error":         err.Error(),
		})
		return env.Reply(nil, err.Error(), code)
	}
	return env.Reply(result, "", 0)
}

func (e *Executor) dispatch(ctx context.Context, op string, payload json.RawMessage) (json.RawMessage, error) {
	switch {
	case strings.HasPrefix(op, "evm."):
		return e.dispatchEvm(ctx, op, payload)
	case strings.HasPrefix(op, "discovery."):
		return e.dispatchDiscovery(op, payload)
	case strings.HasPrefix(op, "solana."):
		return e.dispatchSolana(ctx, op, payload)
	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
}

// ============================================================================
// EVM capabilities
// ============================================================================

func (e *Executor) dispatchEvm(ctx context.Context, op string, payload json.RawMessage) (json.RawMessage, error) {
	var base struct {
		WalletType string `json:"walletType,omitempty"`
	}
	if len(payload) > 0 {
		json.Unmarshal(payload, &base)
	}

	eth := e.discovery.Resolve(base.WalletType)
	if eth == nil {
		return nil, fmt.Errorf("%w: no EVM provider in page", walletbridge.ErrWalletNotFound)
	}

	switch op {
	case OpEvmRequestAccounts:
		accounts, err := requestAccounts(ctx, eth)
		if err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{"accounts": accounts})

	case OpEvmChainID:
		raw, err := eth.Request(ctx, "eth_chainId")
		if err != nil {
			return nil, err
		}
		var chainID string
		if err := json.Unmarshal(raw, &chainID); err != nil {
			return nil, fmt.Errorf("malformed eth_chainId result: %w", err)
		}
		return marshalResult(map[string]any{"chainId": chainID})

	case OpEvmSwitchChain:
		var p struct {
			ChainID string          `json:"chainId"`
			Params  *AddChainParams `json:"params,omitempty"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed switch chain payload: %w", err)
		}
		if err := e.switchChain(ctx, eth, p.ChainID, p.Params); err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{"ok": true})

	case OpEvmAddChain:
		var p struct {
			Params AddChainParams `json:"params"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed add chain payload: %w", err)
		}
		if _, err := eth.Request(ctx, "wallet_addEthereumChain", p.Params); err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{"ok": true})

	case OpEvmSendTransaction:
		var p struct {
			Tx map[string]any `json:"tx"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed transaction payload: %w", err)
		}
		if p.Tx["from"] == nil {
			accounts, err := requestAccounts(ctx, eth)
			if err != nil {
				return nil, err
			}
			if len(accounts) == 0 {
				return nil, fmt.Errorf("no account available to send from")
			}
			p.Tx["from"] = accounts[0]
		}
		raw, err := eth.Request(ctx, "eth_sendTransaction", p.Tx)
		if err != nil {
			return nil, err
		}
		var txHash string
		json.Unmarshal(raw, &txHash)
		return marshalResult(map[string]any{"txHash": txHash})

	case OpEvmPersonalSign:
		var p struct {
			From    string `json:"from"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed sign payload: %w", err)
		}
		raw, err := eth.Request(ctx, "personal_sign", p.Message, p.From)
		if err != nil {
			return nil, err
		}
		var signature string
		json.Unmarshal(raw, &signature)
		return marshalResult(map[string]any{"signature": signature})

	case OpEvmSignTypedData:
		var p struct {
			From string `json:"from"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed typed data payload: %w", err)
		}
		raw, err := eth.Request(ctx, "eth_signTypedData_v4", p.From, p.Data)
		if err != nil {
			return nil, err
		}
		var signature string
		json.Unmarshal(raw, &signature)
		return marshalResult(map[string]any{"signature": signature})

	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
}

// switchChain attempts wallet_switchEthereumChain; when the wallet reports
// the chain as unrecognized it registers the chain definition (explicit
// params first, then the fallback table) and retries the switch once. With
// neither source of params the original provider error is returned.
func (e *Executor) switchChain(ctx context.Context, eth EvmProvider, chainID string, params *AddChainParams) error {
	_, err := eth.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": chainID})
	if err == nil {
		return nil
	}

	code := 0
	var provErr *walletbridge.ProviderError
	if errors.As(err, &provErr) {
		code = provErr.Code
	}
	if !isUnrecognizedChain(code, err.Error()) {
		return err
	}

	if params == nil {
		params = defaultAddChainParams(chainID)
	}
	if params == nil {
		return err
	}

	if _, addErr := eth.Request(ctx, "wallet_addEthereumChain", *params); addErr != nil {
		return addErr
	}

	_, err = eth.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": chainID})
	return err
}

func requestAccounts(ctx context.Context, eth EvmProvider) ([]string, error) {
	raw, err := eth.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("malformed eth_requestAccounts result: %w", err)
	}
	return accounts, nil
}

// ============================================================================
// Wallet discovery capabilities
// ============================================================================

func (e *Executor) dispatchDiscovery(op string, payload json.RawMessage) (json.RawMessage, error) {
	switch op {
	case OpDiscoveryProviders:
		return marshalResult(map[string]any{"providers": e.discovery.All()})

	case OpDiscoveryCheck:
		var p struct {
			WalletType string `json:"walletType"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed discovery payload: %w", err)
		}
		available, rdns := e.discovery.Available(p.WalletType)
		return marshalResult(map[string]any{"available": available, "rdns": rdns})

	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
}

// ============================================================================
// Solana capabilities
// ============================================================================

func (e *Executor) dispatchSolana(ctx context.Context, op string, payload json.RawMessage) (json.RawMessage, error) {
	if e.solana == nil {
		return nil, fmt.Errorf("%w: no Solana provider in page", walletbridge.ErrWalletNotFound)
	}

	switch op {
	case OpSolanaConnect:
		publicKey, err := e.solana.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{"publicKey": publicKey})

	case OpSolanaDisconnect:
		if err := e.solana.Disconnect(ctx); err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{"ok": true})

	case OpSolanaSignMessage:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed sign message payload: %w", err)
		}
		signature, err := e.solana.SignMessage(ctx, []byte(p.Message))
		if err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{
			"signature": base64.StdEncoding.EncodeToString(signature),
		})

	case OpSolanaSignTransactions:
		var p struct {
			Transactions []string `json:"transactions"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("malformed sign transactions payload: %w", err)
		}
		if len(p.Transactions) == 0 {
			return nil, fmt.Errorf("transactions must be a non-empty array")
		}

		wire := make([][]byte, len(p.Transactions))
		for i, encoded := range p.Transactions {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("failed to decode transaction %d: %w", i, err)
			}
			wire[i] = decoded
		}

		signed, err := e.solana.SignAllTransactions(ctx, wire)
		if err != nil {
			return nil, err
		}

		encoded := make([]string, len(signed))
		for i, tx := range signed {
			encoded[i] = base64.StdEncoding.EncodeToString(tx)
		}
		return marshalResult(map[string]any{"signedTransactions": encoded})

	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
}

func marshalResult(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

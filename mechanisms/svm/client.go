package svm

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	walletbridge "github.com/x402wallet/walletbridge"
)

// ExactSvmClient implements walletbridge.SchemeNetworkClient for the exact
// scheme on Solana networks.
type ExactSvmClient struct {
	signer ClientSvmSigner
	config *ClientConfig
}

// NewExactSvmClient creates a new ExactSvmClient. config may be nil to use
// per-network RPC defaults.
func NewExactSvmClient(signer ClientSvmSigner, config *ClientConfig) *ExactSvmClient {
	return &ExactSvmClient{signer: signer, config: config}
}

// Scheme returns the scheme identifier.
func (c *ExactSvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds a token transfer transaction for the chosen
// requirement and has the wallet partially sign it. The fee payer comes
// from the requirement's extra; the facilitator signs that slot later.
func (c *ExactSvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements walletbridge.PaymentRequirement,
) (walletbridge.PaymentPayload, error) {
	config, err := GetNetworkConfig(requirements.Network)
	if err != nil {
		return walletbridge.PaymentPayload{}, err
	}

	rpcURL := config.RPCURL
	if c.config != nil && c.config.RPCURL != "" {
		rpcURL = c.config.RPCURL
	}
	rpcClient := rpc.New(rpcURL)

	signerKey, err := c.signer.Address(ctx)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("invalid asset address: %w", err)
	}

	mintAccount, err := rpcClient.GetAccountInfo(ctx, mintPubkey)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to get mint account: %w", err)
	}

	tokenProgramID := mintAccount.Value.Owner
	if tokenProgramID != solana.TokenProgramID && tokenProgramID != solana.Token2022ProgramID {
		return walletbridge.PaymentPayload{}, fmt.Errorf("asset was not created by a known token program")
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(signerKey, mintPubkey)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to derive source token account: %w", err)
	}

	destinationATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("invalid amount: %w", err)
	}

	feePayerAddr, ok := requirements.Extra["feePayer"].(string)
	if !ok {
		return walletbridge.PaymentPayload{}, fmt.Errorf("feePayer is required in requirement extra for Solana payments")
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerAddr)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("invalid feePayer address: %w", err)
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(mintAccount.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to decode mint data: %w", err)
	}

	latestBlockhash, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	// Fixed budget for the 3 instructions below.
	const estimatedUnits uint32 = 6500

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(estimatedUnits).
		ValidateAndBuild()
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(DefaultComputeUnitPrice).
		ValidateAndBuild()
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to build compute price instruction: %w", err)
	}

	transferIx, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(mintData.Decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mintPubkey).
		SetDestinationAccount(destinationATA).
		SetOwnerAccount(signerKey).
		ValidateAndBuild()
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transferIx).
		SetRecentBlockHash(latestBlockhash.Value.Blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	base64Tx, err := EncodeTransaction(tx)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return walletbridge.PaymentPayload{
		X402Version: version,
		Scheme:      SchemeExact,
		Network:     requirements.Network,
		Payload: map[string]interface{}{
			"transaction": base64Tx,
		},
	}, nil
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// ABI fragments for the market factory and the per-market contract. Only the
// methods and events the adjudicator touches are declared.
const factoryABIJSON = `[
	{"type":"function","name":"createMarket","stateMutability":"nonpayable","inputs":[
		{"name":"question","type":"string"},
		{"name":"startTime","type":"uint64"},
		{"name":"deadline","type":"uint64"},
		{"name":"adjudicator","type":"address"},
		{"name":"guardian","type":"address"},
		{"name":"initialLiquidity","type":"uint256"},
		{"name":"agentId","type":"string"},
		{"name":"minValidators","type":"uint8"}
	],"outputs":[{"name":"market","type":"address"}]},
	{"type":"event","name":"MarketCreated","inputs":[
		{"name":"market","type":"address","indexed":true},
		{"name":"agentId","type":"string","indexed":false}
	],"anonymous":false}
]`

const marketABIJSON = `[
	{"type":"function","name":"settle","stateMutability":"nonpayable","inputs":[
		{"name":"outcome","type":"uint8"},
		{"name":"settledAt","type":"uint64"}
	],"outputs":[]},
	{"type":"function","name":"finalize","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"state","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"outcome","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"adjudicator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"deadline","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"isSettled","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"isFinalized","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

// liquidityDecimals is the collateral token's decimal count (USDC-style).
const liquidityDecimals = 6

// Config holds the RPC endpoint and signing identity for the contract
// boundary.
type Config struct {
	RPCURL         string
	ChainName      string
	ChainID        int64
	FactoryAddress string
	PrivateKey     string // hex-encoded secp256k1 key, optional 0x prefix
}

// Client submits and reads market contracts through a JSON-RPC endpoint.
// Every write waits for the transaction to be mined and checks the receipt
// status, so a nil error means the state change took effect on chain.
type Client struct {
	eth        *ethclient.Client
	factory    *bind.BoundContract
	factoryABI abi.ABI
	marketABI  abi.ABI
	opts       *bind.TransactOpts
	key        *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     *slog.Logger
}

var _ domain.MarketChain = (*Client)(nil)

// New dials the RPC endpoint and prepares a keyed transactor. It does not
// touch the factory contract; a bad factory address surfaces on first use.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("chain: rpc url is required")
	}
	if !common.IsHexAddress(cfg.FactoryAddress) {
		return nil, fmt.Errorf("chain: invalid factory address %q", cfg.FactoryAddress)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", cfg.RPCURL, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: transactor: %w", err)
	}

	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: factory abi: %w", err)
	}
	marketABI, err := abi.JSON(strings.NewReader(marketABIJSON))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: market abi: %w", err)
	}

	factoryAddr := common.HexToAddress(cfg.FactoryAddress)

	return &Client{
		eth:        eth,
		factory:    bind.NewBoundContract(factoryAddr, factoryABI, eth, eth, eth),
		factoryABI: factoryABI,
		marketABI:  marketABI,
		opts:       opts,
		key:        key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
		logger:     logger.With(slog.String("component", "chain"), slog.String("chain", cfg.ChainName)),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Adjudicator returns the address derived from the signing key. The
// settlement synchronizer compares it against the contract's recorded
// adjudicator before submitting.
func (c *Client) Adjudicator() string {
	return c.address.Hex()
}

// CreateMarket deploys a market through the factory and returns the new
// contract's address, recovered from the MarketCreated event in the receipt.
func (c *Client) CreateMarket(ctx context.Context, p domain.CreateMarketParams) (string, error) {
	adjudicator := c.address
	if p.Adjudicator != "" {
		if !common.IsHexAddress(p.Adjudicator) {
			return "", fmt.Errorf("chain: invalid adjudicator address %q: %w", p.Adjudicator, domain.ErrChainSubmission)
		}
		adjudicator = common.HexToAddress(p.Adjudicator)
	}
	var guardian common.Address
	if p.Guardian != "" {
		if !common.IsHexAddress(p.Guardian) {
			return "", fmt.Errorf("chain: invalid guardian address %q: %w", p.Guardian, domain.ErrChainSubmission)
		}
		guardian = common.HexToAddress(p.Guardian)
	}

	tx, err := c.factory.Transact(c.txOpts(ctx), "createMarket",
		p.Question,
		uint64(p.StartTime.Unix()),
		uint64(p.Deadline.Unix()),
		adjudicator,
		guardian,
		toTokenUnits(p.InitialLiquidity),
		p.AgentID,
		uint8(p.MinValidators),
	)
	if err != nil {
		return "", fmt.Errorf("chain: createMarket: %v: %w", err, domain.ErrChainSubmission)
	}

	receipt, err := c.await(ctx, tx)
	if err != nil {
		return "", err
	}

	addr, err := c.marketFromReceipt(receipt)
	if err != nil {
		return "", err
	}

	c.logger.Info("market created on chain",
		slog.String("market_address", addr),
		slog.String("tx_hash", tx.Hash().Hex()))
	return addr, nil
}

// Settle submits the outcome for a deployed market and waits for the mined
// receipt. The registry outcome is converted to the contract encoding here
// and nowhere else.
func (c *Client) Settle(ctx context.Context, marketAddress string, outcome domain.Outcome, ts time.Time) (string, error) {
	enc, err := ToChainOutcome(outcome)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrChainSubmission)
	}

	market, err := c.market(marketAddress)
	if err != nil {
		return "", err
	}

	tx, err := market.Transact(c.txOpts(ctx), "settle", enc, uint64(ts.Unix()))
	if err != nil {
		return "", fmt.Errorf("chain: settle %s: %v: %w", marketAddress, err, domain.ErrChainSubmission)
	}
	if _, err := c.await(ctx, tx); err != nil {
		return "", err
	}

	c.logger.Info("market settled on chain",
		slog.String("market_address", marketAddress),
		slog.String("outcome", string(outcome)),
		slog.String("tx_hash", tx.Hash().Hex()))
	return tx.Hash().Hex(), nil
}

// Finalize moves a settled market past its dispute window.
func (c *Client) Finalize(ctx context.Context, marketAddress string) (string, error) {
	market, err := c.market(marketAddress)
	if err != nil {
		return "", err
	}

	tx, err := market.Transact(c.txOpts(ctx), "finalize")
	if err != nil {
		return "", fmt.Errorf("chain: finalize %s: %v: %w", marketAddress, err, domain.ErrChainSubmission)
	}
	if _, err := c.await(ctx, tx); err != nil {
		return "", err
	}

	c.logger.Info("market finalized on chain",
		slog.String("market_address", marketAddress),
		slog.String("tx_hash", tx.Hash().Hex()))
	return tx.Hash().Hex(), nil
}

// Read snapshots the contract's observable state with view calls.
func (c *Client) Read(ctx context.Context, marketAddress string) (domain.ChainMarketView, error) {
	market, err := c.market(marketAddress)
	if err != nil {
		return domain.ChainMarketView{}, err
	}
	opts := &bind.CallOpts{Context: ctx}

	var view domain.ChainMarketView

	var stateRaw uint8
	if err := c.callUint8(market, opts, "state", &stateRaw); err != nil {
		return view, err
	}
	state, err := FromChainState(stateRaw)
	if err != nil {
		return view, err
	}
	view.State = state

	var outcomeRaw uint8
	if err := c.callUint8(market, opts, "outcome", &outcomeRaw); err != nil {
		return view, err
	}
	view.Outcome = FromChainOutcome(outcomeRaw)

	var out []any
	if err := market.Call(opts, &out, "adjudicator"); err != nil {
		return view, fmt.Errorf("chain: reading adjudicator of %s: %w", marketAddress, err)
	}
	view.Adjudicator = out[0].(common.Address).Hex()

	out = out[:0]
	if err := market.Call(opts, &out, "deadline"); err != nil {
		return view, fmt.Errorf("chain: reading deadline of %s: %w", marketAddress, err)
	}
	view.Deadline = time.Unix(int64(out[0].(uint64)), 0).UTC()

	out = out[:0]
	if err := market.Call(opts, &out, "isSettled"); err != nil {
		return view, fmt.Errorf("chain: reading isSettled of %s: %w", marketAddress, err)
	}
	view.IsSettled = out[0].(bool)

	out = out[:0]
	if err := market.Call(opts, &out, "isFinalized"); err != nil {
		return view, fmt.Errorf("chain: reading isFinalized of %s: %w", marketAddress, err)
	}
	view.IsFinalized = out[0].(bool)

	return view, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) market(address string) (*bind.BoundContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("chain: invalid market address %q: %w", address, domain.ErrChainSubmission)
	}
	addr := common.HexToAddress(address)
	return bind.NewBoundContract(addr, c.marketABI, c.eth, c.eth, c.eth), nil
}

// txOpts returns a per-call copy of the transactor so the shared opts never
// carry a stale context.
func (c *Client) txOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.opts
	opts.Context = ctx
	return &opts
}

// await blocks until the transaction is mined and verifies the receipt
// status. A reverted transaction is a submission failure, not a success with
// a hash.
func (c *Client) await(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("chain: waiting for tx %s: %v: %w", tx.Hash().Hex(), err, domain.ErrChainSubmission)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("chain: tx %s reverted: %w", tx.Hash().Hex(), domain.ErrChainSubmission)
	}
	return receipt, nil
}

func (c *Client) marketFromReceipt(receipt *ethtypes.Receipt) (string, error) {
	eventID := c.factoryABI.Events["MarketCreated"].ID
	for _, entry := range receipt.Logs {
		if len(entry.Topics) >= 2 && entry.Topics[0] == eventID {
			return common.BytesToAddress(entry.Topics[1].Bytes()).Hex(), nil
		}
	}
	return "", fmt.Errorf("chain: tx %s has no MarketCreated event: %w",
		receipt.TxHash.Hex(), domain.ErrChainSubmission)
}

func (c *Client) callUint8(contract *bind.BoundContract, opts *bind.CallOpts, method string, dst *uint8) error {
	var out []any
	if err := contract.Call(opts, &out, method); err != nil {
		return fmt.Errorf("chain: reading %s: %w", method, err)
	}
	*dst = out[0].(uint8)
	return nil
}

// toTokenUnits converts a human liquidity amount to integer token units.
func toTokenUnits(amount float64) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(liquidityDecimals), nil))
	units, _ := new(big.Float).Mul(big.NewFloat(amount), scale).Int(nil)
	return units
}

// Package pancake provides the on-chain trading backend: an EVM RPC client,
// a PancakeSwap v2 router swap executor, and a pair-reserve liquidity source.
package pancake

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection with the trading wallet key and a few
// contract-call helpers shared by the executor and liquidity source.
type Client struct {
	eth           *ethclient.Client
	chainID       *big.Int
	key           *ecdsa.PrivateKey
	from          common.Address
	explorerTxURL string
	logger        *slog.Logger

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

// Dial connects to the chain RPC endpoint and prepares the wallet. key may be
// nil for read-only use (gas and liquidity queries).
func Dial(ctx context.Context, rpcURL string, chainID int64, key *ecdsa.PrivateKey, explorerTxURL string, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("pancake: dial %s: %w", rpcURL, err)
	}

	c := &Client{
		eth:           eth,
		chainID:       big.NewInt(chainID),
		key:           key,
		explorerTxURL: explorerTxURL,
		logger:        logger.With(slog.String("component", "pancake_client")),
		decimals:      make(map[common.Address]uint8),
	}
	if key != nil {
		c.from = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// From returns the trading wallet address.
func (c *Client) From() common.Address {
	return c.from
}

// GetGasPrice returns the node's suggested gas price in gwei. Implements
// domain.GasOracle.
func (c *Client) GetGasPrice(ctx context.Context) (float64, error) {
	wei, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("pancake: suggest gas price: %w", err)
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei, nil
}

// tokenDecimals returns the ERC-20 decimals for token, cached after the first
// on-chain lookup.
func (c *Client) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.Lock()
	if d, ok := c.decimals[token]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	out, err := c.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("pancake: decimals: unexpected type %T", out[0])
	}

	c.mu.Lock()
	c.decimals[token] = d
	c.mu.Unlock()
	return d, nil
}

// tokenBalance returns the raw ERC-20 balance of owner.
func (c *Client) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("pancake: balanceOf: unexpected type %T", out[0])
	}
	return bal, nil
}

// call performs a read-only contract call and unpacks the results.
func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pancake: pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereumCallMsg(to, data), nil)
	if err != nil {
		return nil, fmt.Errorf("pancake: call %s: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("pancake: unpack %s: %w", method, err)
	}
	return out, nil
}

// sendTx signs and submits a contract transaction, then waits for the receipt.
func (c *Client) sendTx(ctx context.Context, to common.Address, data []byte) (*types.Receipt, common.Hash, error) {
	if c.key == nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: no signing key configured")
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereumCallMsgFrom(c.from, to, data))
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, common.Hash{}, fmt.Errorf("pancake: send tx: %w", err)
	}

	hash := signed.Hash()
	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, hash, err
	}
	return receipt, hash, nil
}

// waitMined polls for the transaction receipt until ctx expires.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pancake: wait mined %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// txURL renders a block-explorer link for hash, or empty if no explorer is
// configured.
func (c *Client) txURL(hash common.Hash) string {
	if c.explorerTxURL == "" {
		return ""
	}
	return c.explorerTxURL + hash.Hex()
}

func ethereumCallMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func ethereumCallMsgFrom(from, to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: data}
}

// toUnits converts a whole-token amount to raw integer units.
func toUnits(amount float64, decimals uint8) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	units, _ := scaled.Int(nil)
	return units
}

// fromUnits converts raw integer units to a whole-token amount.
func fromUnits(units *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(units), scale).Float64()
	return v
}

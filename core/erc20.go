package core

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// erc20ABI covers the slice of the token interface the engine consumes.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const erc20TransferGasLimit = 100000

// ChainClient is the part of ethclient.Client the adapter needs, kept as an
// interface so tests can swap in a mock.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)

	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	SendTransaction(ctx context.Context, tx *types.Transaction) error

	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ TokenLedger = (*ERC20Ledger)(nil)

// ERC20Ledger settles governance value transfers against an ERC-20 token
// contract. The custody account signs outbound transfers; voters and
// proposers must have approved the custody address beforehand, mirroring
// the usual allowance flow on chain.
type ERC20Ledger struct {
	client  ChainClient
	token   common.Address
	key     *ecdsa.PrivateKey
	custody common.Address
	abi     abi.ABI
}

func NewERC20Ledger(client ChainClient, token common.Address, custodianKey string) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse erc20 abi")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(custodianKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse custodian key")
	}

	return &ERC20Ledger{
		client:  client,
		token:   token,
		key:     key,
		custody: crypto.PubkeyToAddress(key.PublicKey),
		abi:     parsed,
	}, nil
}

func (l *ERC20Ledger) Custody() common.Address {
	return l.custody
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return l.callUint256(ctx, "balanceOf", addr)
}

func (l *ERC20Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return l.callUint256(ctx, "allowance", owner, spender)
}

func (l *ERC20Ledger) TotalSupply(ctx context.Context) (*big.Int, error) {
	return l.callUint256(ctx, "totalSupply")
}

func (l *ERC20Ledger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return l.sendAndWait(ctx, "transferFrom", from, to, amount)
}

func (l *ERC20Ledger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return l.sendAndWait(ctx, "transfer", to, amount)
}

func (l *ERC20Ledger) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	var out []byte
	action := func(attempt uint) error {
		out, err = l.client.CallContract(ctx, ethereum.CallMsg{
			To:   &l.token,
			Data: data,
		}, nil)
		return err
	}
	if err := retry.Retry(action, strategy.Limit(3), strategy.Backoff(backoff.Fibonacci(time.Second))); err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}

	results, err := l.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(results) == 0 {
		return nil, errors.Errorf("%s returned no values", method)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned unexpected type", method)
	}
	return value, nil
}

func (l *ERC20Ledger) sendAndWait(ctx context.Context, method string, args ...interface{}) error {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return errors.Wrapf(err, "pack %s", method)
	}

	chainID, err := l.client.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "get chain id")
	}

	nonce, err := l.client.PendingNonceAt(ctx, l.custody)
	if err != nil {
		return errors.Wrap(err, "get custody nonce")
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "suggest gas price")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.token,
		Value:    big.NewInt(0),
		Gas:      erc20TransferGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), l.key)
	if err != nil {
		return errors.Wrapf(err, "sign %s", method)
	}

	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return errors.Wrapf(err, "send %s", method)
	}

	return l.waitMined(ctx, signed.Hash(), method)
}

// waitMined polls for the receipt and treats a reverted transaction as a
// hard failure of the enclosing governance operation.
func (l *ERC20Ledger) waitMined(ctx context.Context, hash common.Hash, method string) error {
	var receipt *types.Receipt
	action := func(attempt uint) error {
		var err error
		receipt, err = l.client.TransactionReceipt(ctx, hash)
		return err
	}
	if err := retry.Retry(action, strategy.Limit(10), strategy.Backoff(backoff.Fibonacci(time.Second))); err != nil {
		return errors.Wrapf(err, "wait %s receipt", method)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Errorf("%s transaction %s reverted", method, hash.Hex())
	}
	return nil
}

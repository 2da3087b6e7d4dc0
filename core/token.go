package core

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// TokenLedger is the balance/transfer/allowance service the engine settles
// against. The engine never assumes a call succeeds: any error aborts the
// enclosing operation before governance state is touched.
type TokenLedger interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)

	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)

	// TransferFrom pulls amount from `from` into `to` using a previously
	// granted allowance for the custody account.
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error

	// Transfer moves amount out of the custody account.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error

	// TotalSupply is the reference supply quorum is computed against.
	TotalSupply(ctx context.Context) (*big.Int, error)

	// Custody is the address holding DAO funds on this ledger.
	Custody() common.Address
}

var _ TokenLedger = (*MemLedger)(nil)

// MemCustodyAccount is the synthetic custody address of the in-memory
// ledger.
var MemCustodyAccount = common.HexToAddress("0x00000000000000000000000000000000000da000")

// MemLedger is an in-memory TokenLedger used for simulations and tests. It
// implements the same approve-then-transferFrom discipline as an ERC-20
// token: pulls fail without a prior allowance.
type MemLedger struct {
	mu          sync.Mutex
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int
}

func NewMemLedger(totalSupply *big.Int) *MemLedger {
	return &MemLedger{
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: new(big.Int).Set(totalSupply),
	}
}

// Mint credits addr out of thin air. Simulation setup only.
func (l *MemLedger) Mint(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// Approve grants spender an allowance over owner's balance.
func (l *MemLedger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (l *MemLedger) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(addr)), nil
}

func (l *MemLedger) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowanceOf(owner, spender)), nil
}

func (l *MemLedger) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceOf(from, MemCustodyAccount)
	if allowance.Cmp(amount) < 0 {
		return errors.New("transfer amount exceeds allowance")
	}
	if l.balanceOf(from).Cmp(amount) < 0 {
		return errors.New("transfer amount exceeds balance")
	}

	l.allowances[from][MemCustodyAccount] = new(big.Int).Sub(allowance, amount)
	l.debit(from, amount)
	l.credit(to, amount)
	return nil
}

func (l *MemLedger) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balanceOf(MemCustodyAccount).Cmp(amount) < 0 {
		return errors.New("transfer amount exceeds balance")
	}
	l.debit(MemCustodyAccount, amount)
	l.credit(to, amount)
	return nil
}

func (l *MemLedger) TotalSupply(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.totalSupply), nil
}

func (l *MemLedger) Custody() common.Address {
	return MemCustodyAccount
}

func (l *MemLedger) balanceOf(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (l *MemLedger) allowanceOf(owner, spender common.Address) *big.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return big.NewInt(0)
}

func (l *MemLedger) credit(addr common.Address, amount *big.Int) {
	l.balances[addr] = new(big.Int).Add(l.balanceOf(addr), amount)
}

func (l *MemLedger) debit(addr common.Address, amount *big.Int) {
	l.balances[addr] = new(big.Int).Sub(l.balanceOf(addr), amount)
}

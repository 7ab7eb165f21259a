package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"defil/crypto"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
	errNilStore              = errors.New("token: store not configured")
)

// Store is the key/value surface the ledger persists balances through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger tracks balances and allowances of a single fungible asset.
type Ledger struct {
	store  Store
	symbol string
}

// NewLedger binds a ledger for symbol to the store.
func NewLedger(store Store, symbol string) *Ledger {
	return &Ledger{store: store, symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// Symbol returns the asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) balanceKey(addr crypto.Address) []byte {
	return append([]byte("token/"+l.symbol+"/balance/"), addr.Bytes()...)
}

func (l *Ledger) allowanceKey(owner, spender crypto.Address) []byte {
	key := append([]byte("token/"+l.symbol+"/allowance/"), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func (l *Ledger) supplyKey() []byte {
	return []byte("token/" + l.symbol + "/supply")
}

func (l *Ledger) load(key []byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	value := new(big.Int)
	ok, err := l.store.KVGet(key, value)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", l.symbol, err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (l *Ledger) save(key []byte, value *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	return l.store.KVPut(key, value)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return l.load(l.balanceKey(addr))
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.load(l.supplyKey())
}

// Allowance returns how much spender may move out of owner's balance.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	return l.load(l.allowanceKey(owner, spender))
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	return l.save(l.allowanceKey(owner, spender), new(big.Int).Set(amount))
}

// Mint creates amount new units for to.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.save(l.balanceKey(to), balance.Add(balance, amount)); err != nil {
		return err
	}
	return l.save(l.supplyKey(), supply.Add(supply, amount))
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: %w", l.symbol, ErrInsufficientBalance)
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	if err := l.save(l.balanceKey(from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	return l.save(l.balanceKey(to), toBalance.Add(toBalance, amount))
}

// TransferFrom moves amount out of from on behalf of spender, consuming the
// allowance owner granted to spender.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: %w", l.symbol, ErrInsufficientAllowance)
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.save(l.allowanceKey(from, spender), allowance.Sub(allowance, amount))
}

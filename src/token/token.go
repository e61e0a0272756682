// Package token implements an ERC-20-shaped fungible token ledger. The
// CarryChain marketplace escrows payments in one such token, and the
// stablecoin adapter moves amounts between several of them.
package token

import (
	"math/big"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Event types emitted by a Token.
const (
	TransferEvent = "Transfer"
	ApprovalEvent = "Approval"
)

// Token is an in-memory fungible token contract. It is not safe for concurrent
// use on its own; the node serializes all state-changing calls.
type Token struct {
	address     ledger.Address
	name        string
	symbol      string
	decimals    uint8
	owner       ledger.Address
	totalSupply *big.Int
	balances    map[ledger.Address]*big.Int
	allowances  map[ledger.Address]map[ledger.Address]*big.Int
	events      *ledger.EventLog
	logger      *logrus.Entry
}

// New creates a Token with zero supply. The owner is the only account allowed
// to mint.
func New(name, symbol string, decimals uint8, owner ledger.Address, events *ledger.EventLog, logger *logrus.Entry) *Token {
	return &Token{
		address:     ledger.ContractAddress("token/" + symbol),
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		owner:       owner,
		totalSupply: new(big.Int),
		balances:    make(map[ledger.Address]*big.Int),
		allowances:  make(map[ledger.Address]map[ledger.Address]*big.Int),
		events:      events,
		logger:      logger.WithField("token", symbol),
	}
}

// Address returns the token's contract address.
func (t *Token) Address() ledger.Address {
	return t.address
}

// Name returns the token's name.
func (t *Token) Name() string {
	return t.name
}

// Symbol returns the token's symbol.
func (t *Token) Symbol() string {
	return t.symbol
}

// Decimals returns the number of decimal places in the token's smallest unit.
func (t *Token) Decimals() uint8 {
	return t.decimals
}

// TotalSupply returns the total minted supply.
func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns the balance of an account. Unknown accounts have a zero
// balance.
func (t *Token) BalanceOf(account ledger.Address) *big.Int {
	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Allowance returns how much the spender is still allowed to pull from the
// owner's account.
func (t *Token) Allowance(owner, spender ledger.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if al, ok := spenders[spender]; ok {
			return new(big.Int).Set(al)
		}
	}
	return new(big.Int)
}

// Mint creates amount new units on the recipient's account. Owner-gated.
func (t *Token) Mint(ctx ledger.Context, to ledger.Address, amount *big.Int) error {
	if ctx.Caller != t.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}
	if to.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid recipient")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)

	t.logger.WithFields(logrus.Fields{
		"to":     to.String(),
		"amount": amount.String(),
	}).Debug("Mint")

	t.events.Emit(ctx.Time, TransferEvent, map[string]string{
		"token":  t.symbol,
		"from":   ledger.ZeroAddress.String(),
		"to":     to.String(),
		"amount": amount.String(),
	})

	return nil
}

// Transfer moves amount from the caller's account to another account.
func (t *Token) Transfer(ctx ledger.Context, to ledger.Address, amount *big.Int) error {
	if err := t.move(ctx, ctx.Caller, to, amount); err != nil {
		return err
	}
	return nil
}

// Approve allows the spender to pull up to amount from the caller's account
// via TransferFrom. A new approval overwrites the previous one.
func (t *Token) Approve(ctx ledger.Context, spender ledger.Address, amount *big.Int) error {
	if spender.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid recipient")
	}
	if amount == nil || amount.Sign() < 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	spenders, ok := t.allowances[ctx.Caller]
	if !ok {
		spenders = make(map[ledger.Address]*big.Int)
		t.allowances[ctx.Caller] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)

	t.events.Emit(ctx.Time, ApprovalEvent, map[string]string{
		"token":   t.symbol,
		"owner":   ctx.Caller.String(),
		"spender": spender.String(),
		"amount":  amount.String(),
	})

	return nil
}

// TransferFrom moves amount from one account to another on the strength of a
// prior approval granted to the caller. The caller's allowance is decremented
// by the amount moved.
func (t *Token) TransferFrom(ctx ledger.Context, from, to ledger.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	allowance := t.Allowance(from, ctx.Caller)
	if allowance.Cmp(amount) < 0 {
		return ledger.NewCallErr(ledger.Capacity, "Insufficient allowance")
	}

	if err := t.move(ctx, from, to, amount); err != nil {
		return err
	}

	t.allowances[from][ctx.Caller] = allowance.Sub(allowance, amount)

	return nil
}

// move performs the balance checks and the actual double-entry update shared
// by Transfer and TransferFrom.
func (t *Token) move(ctx ledger.Context, from, to ledger.Address, amount *big.Int) error {
	if to.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid recipient")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	balance := t.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return ledger.NewCallErr(ledger.Capacity, "Insufficient balance")
	}

	t.balances[from] = balance.Sub(balance, amount)
	t.credit(to, amount)

	t.logger.WithFields(logrus.Fields{
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	}).Debug("Transfer")

	t.events.Emit(ctx.Time, TransferEvent, map[string]string{
		"token":  t.symbol,
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	})

	return nil
}

func (t *Token) credit(account ledger.Address, amount *big.Int) {
	if bal, ok := t.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[account] = new(big.Int).Set(amount)
}

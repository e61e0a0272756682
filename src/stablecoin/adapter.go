// Package stablecoin implements the StablecoinAdapter contract: a registry of
// supported payment tokens with fixed-point USD pricing, conversion between
// them, and a thin payment helper. The adapter runs alongside the marketplace
// rather than inside its payment path; the marketplace escrows in a single
// stablecoin, the adapter serves integrations that accept several.
package stablecoin

import (
	"math/big"
	"strconv"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Event types emitted by the Adapter.
const (
	TokenAddedEvent       = "TokenAdded"
	TokenRemovedEvent     = "TokenRemoved"
	PriceUpdatedEvent     = "PriceUpdated"
	PaymentProcessedEvent = "PaymentProcessed"
)

// PriceDecimals is the fixed-point precision of USD prices: 8 decimals, so
// 100000000 is $1.00.
const PriceDecimals = 8

// DefaultPrice is $1.00, the price every token gets when it is added.
var DefaultPrice = big.NewInt(100000000)

// Token is the slice of a token's surface the adapter needs.
type Token interface {
	Address() ledger.Address
	Decimals() uint8
	TransferFrom(ctx ledger.Context, from, to ledger.Address, amount *big.Int) error
}

type tokenEntry struct {
	token    Token
	decimals uint8
	price    *big.Int
}

// Adapter is the StablecoinAdapter contract. It keeps an insertion-ordered
// list of supported tokens for enumeration; removal compacts the list by
// swapping with the last element, so order is not preserved across removals.
type Adapter struct {
	address ledger.Address
	owner   ledger.Address
	entries map[ledger.Address]*tokenEntry
	order   []ledger.Address
	events  *ledger.EventLog
	logger  *logrus.Entry
}

// New creates an Adapter with an empty registry.
func New(owner ledger.Address, events *ledger.EventLog, logger *logrus.Entry) *Adapter {
	return &Adapter{
		address: ledger.ContractAddress("stablecoin-adapter"),
		owner:   owner,
		entries: make(map[ledger.Address]*tokenEntry),
		order:   []ledger.Address{},
		events:  events,
		logger:  logger.WithField("contract", "stablecoin-adapter"),
	}
}

// Address returns the adapter's contract address.
func (a *Adapter) Address() ledger.Address {
	return a.address
}

// AddSupportedToken registers a token at the default $1.00 price, reading its
// decimals from the token itself. Owner-gated.
func (a *Adapter) AddSupportedToken(ctx ledger.Context, token Token) error {
	if ctx.Caller != a.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if token == nil || token.Address().IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid token address")
	}

	if _, ok := a.entries[token.Address()]; ok {
		return ledger.NewCallErr(ledger.Validation, "Token already supported")
	}

	decimals := token.Decimals()

	a.entries[token.Address()] = &tokenEntry{
		token:    token,
		decimals: decimals,
		price:    new(big.Int).Set(DefaultPrice),
	}
	a.order = append(a.order, token.Address())

	a.logger.WithFields(logrus.Fields{
		"token":    token.Address().String(),
		"decimals": decimals,
	}).Debug("AddSupportedToken")

	a.events.Emit(ctx.Time, TokenAddedEvent, map[string]string{
		"token":    token.Address().String(),
		"decimals": strconv.Itoa(int(decimals)),
	})

	return nil
}

// RemoveSupportedToken unregisters a token. Owner-gated.
func (a *Adapter) RemoveSupportedToken(ctx ledger.Context, token ledger.Address) error {
	if ctx.Caller != a.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if _, ok := a.entries[token]; !ok {
		return ledger.NewCallErr(ledger.StateGuard, "Token not supported")
	}

	delete(a.entries, token)

	// swap-with-last keeps the enumeration list dense
	for i, addr := range a.order {
		if addr == token {
			a.order[i] = a.order[len(a.order)-1]
			a.order = a.order[:len(a.order)-1]
			break
		}
	}

	a.events.Emit(ctx.Time, TokenRemovedEvent, map[string]string{
		"token": token.String(),
	})

	return nil
}

// UpdateTokenPrice sets a token's USD price in 8-decimal fixed point.
// Owner-gated.
func (a *Adapter) UpdateTokenPrice(ctx ledger.Context, token ledger.Address, newPrice *big.Int) error {
	if ctx.Caller != a.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	entry, ok := a.entries[token]
	if !ok {
		return ledger.NewCallErr(ledger.StateGuard, "Token not supported")
	}

	if newPrice == nil || newPrice.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid price")
	}

	entry.price = new(big.Int).Set(newPrice)

	a.events.Emit(ctx.Time, PriceUpdatedEvent, map[string]string{
		"token": token.String(),
		"price": newPrice.String(),
	})

	return nil
}

// GetExchangeRate returns a token's USD price in 8-decimal fixed point.
func (a *Adapter) GetExchangeRate(token ledger.Address) (*big.Int, error) {
	entry, ok := a.entries[token]
	if !ok {
		return nil, ledger.NewCallErr(ledger.StateGuard, "Token not supported")
	}
	return new(big.Int).Set(entry.price), nil
}

// ConvertAmount converts an amount from one supported token's denomination to
// another's, normalizing for decimal places and relative USD price:
//
//	converted = amount * 10^toDecimals * fromPrice / (10^fromDecimals * toPrice)
//
// Integer division rounds towards zero; callers must tolerate small rounding
// error. Same-token conversion is the identity, avoiding any rounding drift.
func (a *Adapter) ConvertAmount(fromToken, toToken ledger.Address, amount *big.Int) (*big.Int, error) {
	from, ok := a.entries[fromToken]
	if !ok {
		return nil, ledger.NewCallErr(ledger.StateGuard, "From token not supported")
	}

	to, ok := a.entries[toToken]
	if !ok {
		return nil, ledger.NewCallErr(ledger.StateGuard, "To token not supported")
	}

	if amount == nil {
		return nil, ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	if fromToken == toToken {
		return new(big.Int).Set(amount), nil
	}

	numerator := new(big.Int).Set(amount)
	numerator.Mul(numerator, pow10(to.decimals))
	numerator.Mul(numerator, from.price)

	denominator := new(big.Int).Mul(pow10(from.decimals), to.price)

	return numerator.Div(numerator, denominator), nil
}

// ProcessPayment pulls amount of a supported token from one account to
// another on the strength of a prior approval granted to the adapter.
func (a *Adapter) ProcessPayment(ctx ledger.Context, token ledger.Address, from, to ledger.Address, amount *big.Int) error {
	entry, ok := a.entries[token]
	if !ok {
		return ledger.NewCallErr(ledger.StateGuard, "Token not supported")
	}

	if amount == nil || amount.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Invalid amount")
	}

	if to.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid recipient")
	}

	contractCtx := ledger.Context{Caller: a.address, Time: ctx.Time}
	if err := entry.token.TransferFrom(contractCtx, from, to, amount); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"token":  token.String(),
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	}).Debug("ProcessPayment")

	a.events.Emit(ctx.Time, PaymentProcessedEvent, map[string]string{
		"token":  token.String(),
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	})

	return nil
}

// IsTokenSupported reports whether a token is in the registry.
func (a *Adapter) IsTokenSupported(token ledger.Address) bool {
	_, ok := a.entries[token]
	return ok
}

// GetSupportedTokens returns the addresses of all supported tokens.
func (a *Adapter) GetSupportedTokens() []ledger.Address {
	tokens := make([]ledger.Address, len(a.order))
	copy(tokens, a.order)
	return tokens
}

// GetToken returns the registered token handle for an address.
func (a *Adapter) GetToken(address ledger.Address) (Token, error) {
	entry, ok := a.entries[address]
	if !ok {
		return nil, ledger.NewCallErr(ledger.StateGuard, "Token not supported")
	}
	return entry.token, nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

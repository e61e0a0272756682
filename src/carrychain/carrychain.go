// Package carrychain ties a node together from a config object: operator key,
// stores, contracts, genesis allocations, runtime and HTTP service.
package carrychain

import (
	"math/big"
	"os"
	"time"

	"github.com/Osiyomeoh/carrychain/src/config"
	"github.com/Osiyomeoh/carrychain/src/crypto/keys"
	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/Osiyomeoh/carrychain/src/marketplace"
	"github.com/Osiyomeoh/carrychain/src/node"
	"github.com/Osiyomeoh/carrychain/src/service"
	"github.com/Osiyomeoh/carrychain/src/stablecoin"
	"github.com/Osiyomeoh/carrychain/src/token"
	"github.com/Osiyomeoh/carrychain/src/verification"
)

// CarryChain is the top-level engine: a node, its contracts and stores, and
// the HTTP service.
type CarryChain struct {
	Config       *config.Config
	Events       *ledger.EventLog
	Stablecoin   *token.Token
	Marketplace  *marketplace.Marketplace
	Verification *verification.Registry
	Adapter      *stablecoin.Adapter
	Node         *node.Node
	Service      *service.Service

	owner             ledger.Address
	marketplaceStore  marketplace.Store
	verificationStore verification.Store
}

// NewCarryChain instantiates an engine with a config object. Call Init before
// Run.
func NewCarryChain(config *config.Config) *CarryChain {
	return &CarryChain{
		Config: config,
		Events: ledger.NewEventLog(),
	}
}

// Init initializes the engine: key, stores, contracts, genesis and service.
func (c *CarryChain) Init() error {
	if err := c.initKey(); err != nil {
		return err
	}

	if err := c.initStores(); err != nil {
		return err
	}

	if err := c.initContracts(); err != nil {
		return err
	}

	if err := c.initGenesis(); err != nil {
		return err
	}

	c.initService()

	return nil
}

func (c *CarryChain) initKey() error {
	if c.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(c.Config.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			c.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = keys.GenerateECDSAKey()
			if err != nil {
				return err
			}

			if err := keyfile.WriteKey(privKey); err != nil {
				return err
			}

			c.Config.Logger().WithField("file", c.Config.Keyfile()).Debug("Generated a new private key")
		}

		c.Config.Key = privKey
	}

	c.owner = ledger.AddressFromPubKey(keys.FromPublicKey(&c.Config.Key.PublicKey))

	c.Config.Logger().WithField("owner", c.owner.String()).Debug("Operator address")

	return nil
}

func (c *CarryChain) initStores() error {
	if !c.Config.Store {
		c.marketplaceStore = marketplace.NewInmemStore()
		c.verificationStore = verification.NewInmemStore()

		c.Config.Logger().Debug("created new in-mem stores")

		return nil
	}

	c.Config.Logger().WithField("path", c.Config.DatabaseDir).Debug("Attempting to load or create databases")

	if err := os.MkdirAll(c.Config.MarketplaceDBDir(), 0700); err != nil {
		return err
	}
	if err := os.MkdirAll(c.Config.VerificationDBDir(), 0700); err != nil {
		return err
	}

	marketplaceStore, err := marketplace.LoadOrCreateBadgerStore(c.Config.MarketplaceDBDir())
	if err != nil {
		return err
	}
	c.marketplaceStore = marketplaceStore

	verificationStore, err := verification.LoadOrCreateBadgerStore(c.Config.VerificationDBDir())
	if err != nil {
		return err
	}
	c.verificationStore = verificationStore

	if marketplaceStore.NeedBoostrap() {
		c.Config.Logger().Debug("loaded badger store from existing database")
	} else {
		c.Config.Logger().Debug("created new badger store from fresh database")
	}

	return nil
}

func (c *CarryChain) initContracts() error {
	logger := c.Config.Logger()

	c.Stablecoin = token.New(
		c.Config.TokenName,
		c.Config.TokenSymbol,
		c.Config.TokenDecimals,
		c.owner,
		c.Events,
		logger,
	)

	c.Marketplace = marketplace.New(
		c.owner,
		c.Stablecoin,
		c.Config.PlatformFeePercent,
		c.marketplaceStore,
		c.Events,
		logger,
	)

	c.Verification = verification.NewRegistry(
		c.owner,
		c.Marketplace.Address(),
		c.verificationStore,
		c.Events,
		logger,
	)

	c.Adapter = stablecoin.New(c.owner, c.Events, logger)

	c.Node = node.NewNode(c.Marketplace, c.Verification, c.Adapter, c.Events, logger)
	c.Node.RegisterToken(c.Stablecoin)

	// The escrow token is supported by the adapter from the start.
	ctx := ledger.Context{Caller: c.owner, Time: time.Now().Unix()}
	if err := c.Adapter.AddSupportedToken(ctx, c.Stablecoin); err != nil {
		return err
	}

	return nil
}

func (c *CarryChain) initGenesis() error {
	genesis, err := NewJSONGenesis(c.Config.GenesisFile()).Genesis()
	if err != nil {
		return err
	}

	ctx := ledger.Context{Caller: c.owner, Time: time.Now().Unix()}

	for account, amount := range genesis.Alloc {
		address, err := ledger.ParseAddress(account)
		if err != nil {
			return err
		}

		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			c.Config.Logger().WithField("amount", amount).Warn("Skipping invalid genesis amount")
			continue
		}

		if err := c.Stablecoin.Mint(ctx, address, value); err != nil {
			return err
		}
	}

	if len(genesis.Alloc) > 0 {
		c.Config.Logger().WithField("accounts", len(genesis.Alloc)).Debug("Applied genesis allocations")
	}

	return nil
}

func (c *CarryChain) initService() {
	if !c.Config.NoService {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Node, c.Config.Logger())
	}
}

// Run starts the HTTP service. This is a blocking call.
func (c *CarryChain) Run() {
	if c.Service != nil {
		c.Service.Serve()
		return
	}

	select {}
}

// Shutdown closes the underlying stores.
func (c *CarryChain) Shutdown() {
	if c.marketplaceStore != nil {
		c.marketplaceStore.Close()
	}
	if c.verificationStore != nil {
		c.verificationStore.Close()
	}
}

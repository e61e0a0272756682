package carrychain

import (
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/Osiyomeoh/carrychain/src/config"
	"github.com/Osiyomeoh/carrychain/src/crypto/keys"
	"github.com/Osiyomeoh/carrychain/src/ledger"
)

func testConfig(t *testing.T) *config.Config {
	dir, err := ioutil.TempDir("", "carrychain")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewTestConfig(t)
	conf.SetDataDir(dir)
	conf.NoService = true
	return conf
}

func TestInitGeneratesKey(t *testing.T) {
	conf := testConfig(t)

	engine := NewCarryChain(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Shutdown()

	// the operator key was generated and persisted
	key, err := keys.NewSimpleKeyfile(conf.Keyfile()).ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	owner := ledger.AddressFromPubKey(keys.FromPublicKey(&key.PublicKey))
	if engine.Marketplace.Owner() != owner {
		t.Fatalf("marketplace owner should be %s, not %s", owner, engine.Marketplace.Owner())
	}

	// a second engine on the same datadir reuses the key
	engine2 := NewCarryChain(testConfigAt(t, conf))
	if err := engine2.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine2.Shutdown()

	if engine2.Marketplace.Owner() != owner {
		t.Fatal("the persisted key should be reused")
	}
}

// testConfigAt clones a config pointing at the same datadir but with a fresh
// key slot.
func testConfigAt(t *testing.T, base *config.Config) *config.Config {
	conf := config.NewTestConfig(t)
	conf.SetDataDir(base.DataDir)
	conf.NoService = true
	return conf
}

func TestInitWiresContracts(t *testing.T) {
	conf := testConfig(t)

	engine := NewCarryChain(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Shutdown()

	if engine.Stablecoin.Symbol() != conf.TokenSymbol {
		t.Fatalf("stablecoin symbol should be %s, not %s", conf.TokenSymbol, engine.Stablecoin.Symbol())
	}

	if engine.Marketplace.Stablecoin().Address() != engine.Stablecoin.Address() {
		t.Fatal("marketplace should escrow in the configured stablecoin")
	}

	if engine.Verification.Marketplace() != engine.Marketplace.Address() {
		t.Fatal("verification registry should point at the marketplace")
	}

	// the escrow token is pre-registered with the adapter
	if !engine.Adapter.IsTokenSupported(engine.Stablecoin.Address()) {
		t.Fatal("adapter should support the escrow stablecoin")
	}

	if engine.Service != nil {
		t.Fatal("NoService should suppress the HTTP service")
	}
}

func TestGenesisAllocations(t *testing.T) {
	conf := testConfig(t)

	account := ledger.ContractAddress("test-account")
	genesis := `{"alloc":{"` + account.String() + `":"1000000000"}}`
	if err := ioutil.WriteFile(conf.GenesisFile(), []byte(genesis), 0600); err != nil {
		t.Fatal(err)
	}

	engine := NewCarryChain(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Shutdown()

	if bal := engine.Stablecoin.BalanceOf(account); bal.Cmp(big.NewInt(1000000000)) != 0 {
		t.Fatalf("genesis balance should be 1000000000, not %s", bal)
	}
	if supply := engine.Stablecoin.TotalSupply(); supply.Cmp(big.NewInt(1000000000)) != 0 {
		t.Fatalf("total supply should match the alloc, got %s", supply)
	}
}

func TestJSONGenesis(t *testing.T) {
	dir, err := ioutil.TempDir("", "genesis")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	// missing file yields an empty alloc
	genesis, err := NewJSONGenesis(filepath.Join(dir, "missing.json")).Genesis()
	if err != nil {
		t.Fatal(err)
	}
	if len(genesis.Alloc) != 0 {
		t.Fatalf("missing file should yield an empty alloc, got %v", genesis.Alloc)
	}

	// malformed file is an error
	badPath := filepath.Join(dir, "bad.json")
	if err := ioutil.WriteFile(badPath, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONGenesis(badPath).Genesis(); err == nil {
		t.Fatal("malformed genesis should be an error")
	}

	goodPath := filepath.Join(dir, "genesis.json")
	content := `{"alloc":{"0X1111111111111111111111111111111111111111": "42"}}`
	if err := ioutil.WriteFile(goodPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	genesis, err = NewJSONGenesis(goodPath).Genesis()
	if err != nil {
		t.Fatal(err)
	}
	if genesis.Alloc["0X1111111111111111111111111111111111111111"] != "42" {
		t.Fatalf("bad alloc: %v", genesis.Alloc)
	}
}

func TestBadgerPersistence(t *testing.T) {
	conf := testConfig(t)
	conf.Store = true

	engine := NewCarryChain(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	engine.Shutdown()

	// reopening the same databases must work
	engine2 := NewCarryChain(testConfigAtStore(t, conf))
	if err := engine2.Init(); err != nil {
		t.Fatal(err)
	}
	engine2.Shutdown()
}

func testConfigAtStore(t *testing.T, base *config.Config) *config.Config {
	conf := config.NewTestConfig(t)
	conf.SetDataDir(base.DataDir)
	conf.NoService = true
	conf.Store = true
	return conf
}

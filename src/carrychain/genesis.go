package carrychain

import (
	"encoding/json"
	"io/ioutil"
	"os"
)

// Genesis lists the stablecoin balances minted when a node starts from a fresh
// database: account address -> amount in the token's smallest unit, as a
// decimal string.
type Genesis struct {
	Alloc map[string]string `json:"alloc"`
}

// JSONGenesis reads the genesis allocations from a JSON file.
type JSONGenesis struct {
	path string
}

// NewJSONGenesis creates a JSONGenesis reader for the given file.
func NewJSONGenesis(path string) *JSONGenesis {
	return &JSONGenesis{path: path}
}

// Genesis returns the parsed genesis file. A missing file is not an error; it
// yields an empty allocation.
func (g *JSONGenesis) Genesis() (*Genesis, error) {
	if _, err := os.Stat(g.path); err != nil {
		return &Genesis{Alloc: map[string]string{}}, nil
	}

	buf, err := ioutil.ReadFile(g.path)
	if err != nil {
		return nil, err
	}

	genesis := &Genesis{}
	if err := json.Unmarshal(buf, genesis); err != nil {
		return nil, err
	}

	if genesis.Alloc == nil {
		genesis.Alloc = map[string]string{}
	}

	return genesis, nil
}

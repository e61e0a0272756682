package service

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/crypto/keys"
	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/Osiyomeoh/carrychain/src/marketplace"
	"github.com/Osiyomeoh/carrychain/src/node"
	"github.com/Osiyomeoh/carrychain/src/stablecoin"
	"github.com/Osiyomeoh/carrychain/src/token"
	"github.com/Osiyomeoh/carrychain/src/verification"
)

type testService struct {
	server *httptest.Server
	usdc   *token.Token
	owner  ledger.Address
}

func newTestService(t *testing.T) *testService {
	logger := common.NewTestEntry(t)
	events := ledger.NewEventLog()

	ownerKey, _ := keys.GenerateECDSAKey()
	owner := ledger.AddressFromPubKey(keys.FromPublicKey(&ownerKey.PublicKey))

	usdc := token.New("USD Coin", "USDC", 6, owner, events, logger)
	m := marketplace.New(owner, usdc, 5, marketplace.NewInmemStore(), events, logger)
	v := verification.NewRegistry(owner, m.Address(), verification.NewInmemStore(), events, logger)
	a := stablecoin.New(owner, events, logger)

	n := node.NewNode(m, v, a, events, logger)
	n.RegisterToken(usdc)

	service := NewService("127.0.0.1:0", n, logger)
	server := httptest.NewServer(service.Router())
	t.Cleanup(server.Close)

	// seed a route through the tx endpoint so reads have something to return
	now := time.Now().Unix()
	tx, err := node.NewTransaction(node.TxCreateRoute, node.RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       now + 86400,
		ArrivalTime:         now + 2*86400,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})
	if err != nil {
		t.Fatal(err)
	}
	travelerKey, _ := keys.GenerateECDSAKey()
	if err := tx.Sign(travelerKey); err != nil {
		t.Fatal(err)
	}
	data, err := tx.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(server.URL+"/tx", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		t.Fatalf("seeding route failed: %d %s", resp.StatusCode, body)
	}

	receipt := node.TxReceipt{}
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.ID != 1 {
		t.Fatalf("seeded route id should be 1, not %d", receipt.ID)
	}

	return &testService{server: server, usdc: usdc, owner: owner}
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestGetRoute(t *testing.T) {
	ts := newTestService(t)

	status, body := get(t, ts.server.URL+"/routes/1")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	route := new(marketplace.TravelRoute)
	if err := route.Unmarshal(body); err != nil {
		t.Fatal(err)
	}
	if route.DestinationLocation != "London" || !route.IsActive {
		t.Fatalf("bad route: %+v", route)
	}

	status, _ = get(t, ts.server.URL+"/routes/99")
	if status != http.StatusNotFound {
		t.Fatalf("missing route should be 404, got %d", status)
	}

	status, _ = get(t, ts.server.URL+"/routes/notanumber")
	if status != http.StatusBadRequest {
		t.Fatalf("bad id should be 400, got %d", status)
	}
}

func TestSubmitTxRejections(t *testing.T) {
	ts := newTestService(t)

	// garbage body
	resp, err := http.Post(ts.server.URL+"/tx", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("garbage tx should be 400, got %d", resp.StatusCode)
	}

	// a well-formed but unsigned transaction fails signature verification
	tx, err := node.NewTransaction(node.TxAcceptDelivery, node.DeliveryIDPayload{DeliveryID: 1})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := tx.Marshal()

	resp, err = http.Post(ts.server.URL+"/tx", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unsigned tx should be 403, got %d", resp.StatusCode)
	}

	// a signed transaction hitting a state guard maps to 409
	key, _ := keys.GenerateECDSAKey()
	if err := tx.Sign(key); err != nil {
		t.Fatal(err)
	}
	data, _ = tx.Marshal()

	resp, err = http.Post(ts.server.URL+"/tx", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("state guard should be 409, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Delivery does not exist") {
		t.Fatalf("the contract's reason should be the body, got %q", body)
	}
}

func TestGetVerification(t *testing.T) {
	ts := newTestService(t)

	// unknown ids return an empty record, not a 404
	status, body := get(t, ts.server.URL+"/verifications/42")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	v := new(verification.Verification)
	if err := v.Unmarshal(body); err != nil {
		t.Fatal(err)
	}
	if v.DeliveryID != 42 || v.IsVerified() {
		t.Fatalf("expected an empty record, got %+v", v)
	}
}

func TestGetBalance(t *testing.T) {
	ts := newTestService(t)

	url := ts.server.URL + "/balance/" + ts.usdc.Address().String() + "/" + ts.owner.String()
	status, body := get(t, url)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	res := map[string]string{}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res["balance"] != "0" {
		t.Fatalf("owner balance should be 0, not %s", res["balance"])
	}

	// unknown token is a 404
	status, _ = get(t, ts.server.URL+"/balance/"+ledger.ContractAddress("token/FAKE").String()+"/"+ts.owner.String())
	if status != http.StatusNotFound {
		t.Fatalf("unknown token should be 404, got %d", status)
	}
}

func TestGetEvents(t *testing.T) {
	ts := newTestService(t)

	status, body := get(t, ts.server.URL+"/events")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	events := []ledger.Event{}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("seeding the route should have emitted events")
	}
	last := events[len(events)-1].Seq

	status, body = get(t, ts.server.URL+"/events?since="+strconv.Itoa(last))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	rest := []ledger.Event{}
	if err := json.Unmarshal(body, &rest); err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("no events past the last seq, got %d", len(rest))
	}

	status, _ = get(t, ts.server.URL+"/events?since=notanumber")
	if status != http.StatusBadRequest {
		t.Fatalf("bad since should be 400, got %d", status)
	}
}

func TestGetStats(t *testing.T) {
	ts := newTestService(t)

	status, body := get(t, ts.server.URL+"/stats")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	stats := map[string]string{}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats["tx_count"] != "1" {
		t.Fatalf("tx_count should be 1, not %s", stats["tx_count"])
	}
}

package verification

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	cm "github.com/Osiyomeoh/carrychain/src/common"
)

func TestInmemStore(t *testing.T) {
	store := NewInmemStore()

	if _, err := store.GetVerification(1); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	v := &Verification{
		DeliveryID:      1,
		PickupProofCID:  "QmPickup",
		PickupTimestamp: testTime,
	}
	if err := store.SetVerification(v); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetVerification(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.PickupProofCID != "QmPickup" {
		t.Fatalf("bad record: %+v", got)
	}
}

func TestBadgerStoreBootstrap(t *testing.T) {
	dir, err := ioutil.TempDir("", "badger")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "db")

	store, err := LoadOrCreateBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if store.NeedBoostrap() {
		t.Fatal("fresh store should not need bootstrap")
	}

	v := &Verification{
		DeliveryID:        1,
		PickupProofCID:    "QmPickup",
		PickupTimestamp:   testTime,
		DeliveryProofCID:  "QmDelivery",
		DeliveryTimestamp: testTime + 1,
		Notified:          true,
	}
	if err := store.SetVerification(v); err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadOrCreateBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if !reloaded.NeedBoostrap() {
		t.Fatal("reloaded store should report bootstrap")
	}

	got, err := reloaded.GetVerification(1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsVerified() || !got.Notified {
		t.Fatalf("record should survive reload intact, got %+v", got)
	}
	if got.DeliveryTimestamp != testTime+1 {
		t.Fatalf("timestamps should survive reload, got %d", got.DeliveryTimestamp)
	}
}

package keys

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"testing"

	ccrypto "github.com/Osiyomeoh/carrychain/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {

	// Create a test dir
	os.Mkdir("test_data", os.ModeDir|0700)
	dir, err := ioutil.TempDir("test_data", "carrychain")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	// Initialize a key and try a write
	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should get key
	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(*nKey, *key) {
		t.Fatalf("Keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {

	// Create a test dir
	os.Mkdir("test_data", os.ModeDir|0700)
	dir, err := ioutil.TempDir("test_data", "carrychain")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	// Initialize a key and try a write
	key, _ := GenerateECDSAKey()
	rawKey := hex.EncodeToString(DumpPrivateKey(key))

	badKeyPath := path.Join(dir, "priv_key_bad")

	// random selection of permissions that should not be accepted. There might
	// be a more clever way to build this list.
	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		ioutil.WriteFile(badKeyPath, []byte(rawKey), fm)

		badKeyFile := NewSimpleKeyfile(badKeyPath)

		if _, err := badKeyFile.ReadKey(); err == nil {
			t.Fatalf("%o || badKeyFile should return permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	// random selection of permissions that should pass
	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		ioutil.WriteFile(goodKeyPath, []byte(rawKey), fm)

		goodKeyFile := NewSimpleKeyfile(goodKeyPath)

		if _, err := goodKeyFile.ReadKey(); err != nil {
			t.Fatalf("%o || goodKeyFile should not return error. Got %v", fm, err)
		}
	}

}

func TestSignatureEncoding(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	msg := "Time flies like an arrow; fruit flies like a banana"
	msgBytes := []byte(msg)
	msgHashBytes := ccrypto.SHA256(msgBytes)

	r, s, _ := Sign(privKey, msgHashBytes)

	encodedSig := EncodeSignature(r, s)

	dr, ds, err := DecodeSignature(encodedSig)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if r.Cmp(dr) != 0 {
		t.Fatalf("Signature Rs defer")
	}

	if s.Cmp(ds) != 0 {
		t.Fatalf("Signature Ss defer")
	}

	if !Verify(&privKey.PublicKey, msgHashBytes, dr, ds) {
		t.Fatalf("Signature should verify")
	}

	otherKey, _ := GenerateECDSAKey()
	if Verify(&otherKey.PublicKey, msgHashBytes, dr, ds) {
		t.Fatalf("Signature should not verify with another key")
	}
}

func TestDecodeSignatureMalformed(t *testing.T) {
	testCases := []string{
		"",
		"a",
		"a|",
		"|b",
		"a|b|c",
		"!!|1",
		"1|%%",
	}

	for _, sig := range testCases {
		r, s, err := DecodeSignature(sig)
		if err == nil {
			t.Fatalf("DecodeSignature(%q) should return an error", sig)
		}
		if r != nil || s != nil {
			t.Fatalf("DecodeSignature(%q) should not return components", sig)
		}
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	raw := FromPublicKey(&privKey.PublicKey)
	pub := ToPublicKey(raw)
	if pub == nil {
		t.Fatalf("ToPublicKey returned nil")
	}

	if pub.X.Cmp(privKey.PublicKey.X) != 0 || pub.Y.Cmp(privKey.PublicKey.Y) != 0 {
		t.Fatalf("public key round trip mismatch")
	}

	if ToPublicKey([]byte{0x01, 0x02}) != nil {
		t.Fatalf("garbage bytes should not parse as a public key")
	}
}

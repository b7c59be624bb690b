package crypto

import "testing"

func TestGenerateMLDSAKeyDeterministicFromSeed(t *testing.T) {
	var seed [32]byte
	copy(seed[:], []byte("a reproducible 32-byte seed!!!!"))

	pub1, priv1, err := GenerateMLDSAKey(seed)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub2, priv2, err := GenerateMLDSAKey(seed)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(pub1) != string(pub2) || string(priv1) != string(priv2) {
		t.Fatalf("key generation from the same seed must be deterministic")
	}
	if len(pub1) != MLDSAPublicKeySize {
		t.Fatalf("unexpected public key size: %d", len(pub1))
	}
	if len(priv1) != MLDSAPrivateKeySize {
		t.Fatalf("unexpected private key size: %d", len(priv1))
	}
}

func TestGenerateMLDSAKeyDifferentSeeds(t *testing.T) {
	var seedA, seedB [32]byte
	copy(seedA[:], []byte("seed-a-seed-a-seed-a-seed-a-1234"))
	copy(seedB[:], []byte("seed-b-seed-b-seed-b-seed-b-5678"))

	pubA, _, err := GenerateMLDSAKey(seedA)
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	pubB, _, err := GenerateMLDSAKey(seedB)
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}
	if string(pubA) == string(pubB) {
		t.Fatalf("different seeds produced identical public keys")
	}
}

func TestSignAndVerifyMLDSARoundTrip(t *testing.T) {
	var seed [32]byte
	copy(seed[:], []byte("signing-test-seed-signing-test!"))
	pub, priv, err := GenerateMLDSAKey(seed)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	msg := []byte("transaction sighash digest")
	sig, err := SignMLDSA(priv, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !VerifyMLDSA(pub, msg, sig) {
		t.Fatalf("signature failed to verify against its own message and key")
	}
	if VerifyMLDSA(pub, []byte("a different message"), sig) {
		t.Fatalf("signature verified against a message it did not sign")
	}
}

func TestVerifyMLDSARejectsMalformedInputWithoutPanicking(t *testing.T) {
	if VerifyMLDSA([]byte("too short"), []byte("msg"), []byte("also too short")) {
		t.Fatalf("malformed pubkey/signature should never verify")
	}
}

func TestSplitAndBuildUnlockRoundTrip(t *testing.T) {
	sig := make([]byte, MLDSASignatureSize)
	pub := make([]byte, MLDSAPublicKeySize)
	for i := range sig {
		sig[i] = byte(i)
	}
	for i := range pub {
		pub[i] = byte(255 - i)
	}
	unlock := BuildUnlock(sig, pub)
	gotSig, gotPub, err := SplitUnlock(unlock)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if string(gotSig) != string(sig) || string(gotPub) != string(pub) {
		t.Fatalf("split/build did not round trip")
	}
}

func TestSplitUnlockRejectsWrongLength(t *testing.T) {
	if _, _, err := SplitUnlock([]byte("too short")); err == nil {
		t.Fatalf("expected error for a malformed unlock blob")
	}
}

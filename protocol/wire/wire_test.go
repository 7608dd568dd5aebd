package wire

import "testing"

func TestAeadNonceRoundTrip(t *testing.T) {
	n := AeadNonce(PacketTypeData, 0x0102030405060708)
	packetType, counter := FromNonce(n)
	if packetType != PacketTypeData {
		t.Fatalf("packet type = %d, want %d", packetType, PacketTypeData)
	}
	if counter != 0x0102030405060708 {
		t.Fatalf("counter = %x, want %x", counter, 0x0102030405060708)
	}
	if n[0] != 0 || n[1] != 0 || n[2] != 0 {
		t.Fatalf("nonce leading bytes not zero: %v", n)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize+4)
	nonce := AeadNonce(PacketTypeKeyConfirm, 42)
	SetHeader(buf, 0xdeadbeef, nonce)
	buf[FragmentNoIdx] = 1
	buf[FragmentCountIdx] = 3

	h := ParseHeader(buf)
	if h.KidRecv != 0xdeadbeef {
		t.Fatalf("kid = %x, want %x", h.KidRecv, 0xdeadbeef)
	}
	if h.FragmentNo != 1 || h.FragmentCount != 3 {
		t.Fatalf("fragment fields = %d/%d, want 1/3", h.FragmentNo, h.FragmentCount)
	}
	var reconstructed [AeadNonceSize]byte
	copy(reconstructed[2:], h.Nonce[:])
	packetType, counter := FromNonce(reconstructed)
	if packetType != PacketTypeKeyConfirm || counter != 42 {
		t.Fatalf("recovered type/counter = %d/%d, want %d/%d", packetType, counter, PacketTypeKeyConfirm, 42)
	}
}

func TestParseFragmentHeaderRejectsBadCounts(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[FragmentNoIdx] = 2
	buf[FragmentCountIdx] = 2 // fragmentNo >= fragmentCount
	if _, _, _, ok := ParseFragmentHeader(buf); ok {
		t.Fatal("expected rejection when fragmentNo >= fragmentCount")
	}

	buf[FragmentNoIdx] = 0
	buf[FragmentCountIdx] = 0 // fragmentCount == 0
	if _, _, _, ok := ParseFragmentHeader(buf); ok {
		t.Fatal("expected rejection when fragmentCount == 0")
	}

	buf[FragmentNoIdx] = 0
	buf[FragmentCountIdx] = byte(MaxFragments + 1)
	if _, _, _, ok := ParseFragmentHeader(buf); ok {
		t.Fatal("expected rejection when fragmentCount exceeds MaxFragments")
	}
}

func TestParseFragmentHeaderAccepts(t *testing.T) {
	buf := make([]byte, HeaderSize)
	nonce := AeadNonce(PacketTypeData, 7)
	SetHeader(buf, 1, nonce)
	buf[FragmentNoIdx] = 0
	buf[FragmentCountIdx] = 1

	fragmentNo, fragmentCount, gotNonce, ok := ParseFragmentHeader(buf)
	if !ok {
		t.Fatal("expected acceptance")
	}
	if fragmentNo != 0 || fragmentCount != 1 {
		t.Fatalf("got %d/%d, want 0/1", fragmentNo, fragmentCount)
	}
	if gotNonce != nonce {
		t.Fatalf("nonce = %v, want %v", gotNonce, nonce)
	}
}

func TestPacketTypeUsesCounterRange(t *testing.T) {
	counting := []byte{PacketTypeData, PacketTypeKeyConfirm, PacketTypeAck, PacketTypeRekeyInit, PacketTypeRekeyComplete, PacketTypeSessionRejected}
	for _, pt := range counting {
		if !PacketTypeUsesCounterRange(pt) {
			t.Errorf("packet type %d should use the counter range", pt)
		}
	}
	notCounting := []byte{PacketTypeHandshakeHello, PacketTypeHandshakeResponse, PacketTypeHandshakeCompletion, PacketTypeChallenge}
	for _, pt := range notCounting {
		if PacketTypeUsesCounterRange(pt) {
			t.Errorf("packet type %d should not use the counter range", pt)
		}
	}
}

package wire

import "testing"

type noopObfuscator struct{ calls int }

func (o *noopObfuscator) EncryptBlock(block *[HeaderAuthEnd - HeaderAuthStart]byte) { o.calls++ }

func TestSendFragmentsAndReassembles(t *testing.T) {
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}

	packet := make([]byte, HeaderSize, HeaderSize+len(payload))
	nonce := AeadNonce(PacketTypeData, 5)
	SetHeader(packet, 0x11223344, nonce)
	packet = append(packet, payload...)

	var sent [][]byte
	ok := Send(func(fragment []byte) bool {
		cp := append([]byte(nil), fragment...)
		sent = append(sent, cp)
		return true
	}, MinTransportMTU, packet, nil)
	if !ok {
		t.Fatal("Send reported failure")
	}
	if len(sent) < 2 {
		t.Fatalf("expected multiple fragments for a %d-byte payload under MTU %d, got %d", len(payload), MinTransportMTU, len(sent))
	}

	var reassembled []byte
	for i, frag := range sent {
		fragmentNo, fragmentCount, gotNonce, ok := ParseFragmentHeader(frag)
		if !ok {
			t.Fatalf("fragment %d: header rejected", i)
		}
		if fragmentNo != i {
			t.Fatalf("fragment %d: fragment_no = %d, want %d", i, fragmentNo, i)
		}
		if fragmentCount != len(sent) {
			t.Fatalf("fragment %d: fragment_count = %d, want %d", i, fragmentCount, len(sent))
		}
		if gotNonce != nonce {
			t.Fatalf("fragment %d: nonce = %v, want %v", i, gotNonce, nonce)
		}
		reassembled = append(reassembled, frag[HeaderSize:]...)
	}

	if len(reassembled) != len(payload) {
		t.Fatalf("reassembled length = %d, want %d", len(reassembled), len(payload))
	}
	for i := range payload {
		if reassembled[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, reassembled[i], payload[i])
		}
	}
}

func TestSendAppliesHeaderObfuscationPerFragment(t *testing.T) {
	packet := make([]byte, HeaderSize+10)
	nonce := AeadNonce(PacketTypeKeyConfirm, 1)
	SetHeader(packet, 1, nonce)

	var obf noopObfuscator
	n := 0
	Send(func([]byte) bool { n++; return true }, MinTransportMTU, packet, &obf)
	if obf.calls != n {
		t.Fatalf("obfuscator invoked %d times for %d fragments", obf.calls, n)
	}
}

func TestSendStopsEarlyWhenSendReturnsFalse(t *testing.T) {
	packet := make([]byte, HeaderSize+1000)
	nonce := AeadNonce(PacketTypeData, 1)
	SetHeader(packet, 1, nonce)

	n := 0
	ok := Send(func([]byte) bool {
		n++
		return n < 2
	}, MinTransportMTU, packet, nil)
	if ok {
		t.Fatal("expected Send to report failure when a send callback returns false")
	}
	if n != 2 {
		t.Fatalf("expected exactly 2 send attempts before stopping, got %d", n)
	}
}

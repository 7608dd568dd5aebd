// Package wire defines the ZSSP packet header layout, packet type bytes,
// AEAD nonce construction, and the fragmentation algorithm described in
// section 6 of the protocol specification. Nothing in this package touches
// a socket; it only reasons about byte layout.
package wire

import "encoding/binary"

// Header field offsets. Every wire packet begins with this 16-byte header.
const (
	KidSize           = 4
	FragmentNoIdx     = KidSize
	FragmentCountIdx  = KidSize + 1
	PacketNonceStart  = KidSize + 2
	HeaderSize        = KidSize + 2 + 10 // kid(4) | fragment_no(1) | fragment_count(1) | nonce(10)
	HeaderAuthStart   = 6
	HeaderAuthEnd     = HeaderAuthStart + 16
	PacketNonceSize   = 10
	AeadNonceSize     = 12
	AeadTagSize       = 16
	Aes256KeySize     = 32
	HashLen           = 64
	RatchetSize       = 32
	IdentityMaxSize   = 4096
	MinTransportMTU   = 128
	MinPacketSize     = HeaderSize
	MaxFragments      = 48
	SessionMaxFragOOO = 4
)

// Packet type values. These occupy nonce byte index 3 (nonce[3]).
const (
	PacketTypeData                byte = 0
	PacketTypeHandshakeHello      byte = 1
	PacketTypeHandshakeResponse   byte = 2
	PacketTypeHandshakeCompletion byte = 3
	PacketTypeKeyConfirm          byte = 4
	PacketTypeAck                 byte = 5
	PacketTypeRekeyInit           byte = 6
	PacketTypeRekeyComplete       byte = 7
	PacketTypeSessionRejected     byte = 8
	PacketTypeChallenge           byte = 9
)

// PacketTypeUsesCounterRange reports whether packet_type is subject to the
// anti-replay counter pre-filter on the receive path (data and the rekey/
// key-confirm control types all carry a monotonic per-session counter).
func PacketTypeUsesCounterRange(t byte) bool {
	switch t {
	case PacketTypeData, PacketTypeKeyConfirm, PacketTypeAck, PacketTypeRekeyInit, PacketTypeRekeyComplete, PacketTypeSessionRejected:
		return true
	default:
		return false
	}
}

// Handshake and control packet size bounds, each counting the 16-byte
// header. P-384 public keys travel uncompressed (97 bytes); a Kyber-1024
// public key and a Kyber-1024 ciphertext are 1568 bytes each.
const (
	HandshakeHelloMinSize      = HeaderSize + KidSize + 97 + 1568 + AeadTagSize + AeadTagSize
	HandshakeHelloMaxSize      = HandshakeHelloMinSize + 2*RatchetSize
	HandshakeResponseSize      = HeaderSize + 97 + 1568 + AeadTagSize + KidSize + AeadTagSize
	HandshakeCompletionMinSize = HeaderSize + 97 + AeadTagSize
	HandshakeCompletionMaxSize = HandshakeCompletionMinSize + IdentityMaxSize
	KeyConfirmationSize        = HeaderSize + AeadTagSize
	AcknowledgementSize        = HeaderSize + AeadTagSize
	RekeySize                  = HeaderSize + 97 + KidSize + AeadTagSize + AeadTagSize
	SessionRejectedSize        = HeaderSize + AeadTagSize
	ChallengeSize              = 16
	HeaderedChallengeSize      = HeaderSize + KidSize + ChallengeSize
)

// Header is a parsed view over the fixed 16-byte wire header.
type Header struct {
	KidRecv       uint32
	FragmentNo    uint8
	FragmentCount uint8
	Nonce         [PacketNonceSize]byte
}

// ParseHeader reads the fixed header fields out of buf. It does not
// validate fragment_no/fragment_count bounds; callers check those.
func ParseHeader(buf []byte) Header {
	var h Header
	h.KidRecv = binary.BigEndian.Uint32(buf[:KidSize])
	h.FragmentNo = buf[FragmentNoIdx]
	h.FragmentCount = buf[FragmentCountIdx]
	copy(h.Nonce[:], buf[PacketNonceStart:HeaderSize])
	return h
}

// SetHeader writes kid_recv and the packet nonce into the header region of
// buf. fragment_no/fragment_count must be set separately by the caller (the
// fragmentation algorithm assigns them per-fragment).
func SetHeader(buf []byte, kidRecv uint32, nonce [AeadNonceSize]byte) {
	binary.BigEndian.PutUint32(buf[:KidSize], kidRecv)
	copy(buf[PacketNonceStart:HeaderSize], nonce[2:])
}

// AeadNonce builds the 12-byte AEAD nonce presented to the primitive:
// [0,0,0, packet_type, counter_be64]. The packet type occupies the byte
// that would otherwise be the high byte of a 4-byte counter, binding the
// type into the nonce (and, transitively, into every AEAD tag) without
// needing separate AAD.
func AeadNonce(packetType byte, counter uint64) [AeadNonceSize]byte {
	var n [AeadNonceSize]byte
	n[3] = packetType
	binary.BigEndian.PutUint64(n[4:], counter)
	return n
}

// FromNonce extracts the packet type and counter back out of an AEAD nonce.
func FromNonce(n [AeadNonceSize]byte) (packetType byte, counter uint64) {
	return n[3], binary.BigEndian.Uint64(n[4:])
}

// ParseFragmentHeader validates the fragment_no/fragment_count fields of an
// incoming fragment and extracts the AEAD nonce embedded in the packet
// nonce field (the leading 2 bytes of the nonce are always zero on the
// wire and reconstructed here).
func ParseFragmentHeader(fragment []byte) (fragmentNo, fragmentCount int, nonce [AeadNonceSize]byte, ok bool) {
	fragmentNo = int(fragment[FragmentNoIdx])
	fragmentCount = int(fragment[FragmentCountIdx])
	if fragmentNo >= fragmentCount || fragmentCount > MaxFragments || fragmentCount == 0 {
		return 0, 0, nonce, false
	}
	copy(nonce[2:], fragment[PacketNonceStart:HeaderSize])
	return fragmentNo, fragmentCount, nonce, true
}

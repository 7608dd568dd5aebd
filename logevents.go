package zssp

// Concrete LogEvent payloads. A logging ApplicationLayer implementation
// type-switches on these; see cmd/server for a logrus-backed example.

type ReceivedRawFragment struct {
	PacketType                byte
	Counter                   uint64
	FragmentNo, FragmentCount int
}

type ReceivedX1 struct{}
type SentX2 struct{}
type ReceivedX2 struct{}
type SentX3 struct{}
type ReceivedX3 struct{ Downgraded bool }
type SentKeyConfirm struct{}
type ReceivedKeyConfirm struct{ Established bool }
type SentAck struct{}
type ReceivedAck struct{}
type ReceivedRekeyInit struct{}
type SentRekeyComplete struct{}
type ReceivedRekeyComplete struct{}
type ReceivedSessionRejected struct{}
type ReceivedChallenge struct{}
type SentChallenge struct{}
type ChallengeFailed struct{}

// FaultLogged is emitted whenever receive() drops a packet due to a
// Byzantine fault. Natural faults are routine on a lossy transport;
// unnatural ones warrant attention.
type FaultLogged struct {
	Kind    FaultKind
	Natural bool
}

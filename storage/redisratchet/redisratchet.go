// Package redisratchet implements zssp's ratchet.Storage interface on top
// of Redis, following configs.ClientRatchetKey's templated-key
// convention for naming per-peer records.
package redisratchet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"zssp/configs"
	"zssp/protocol/ratchet"
)

// Store persists ratchet pairs and the fingerprint index they're looked
// up by in a Redis keyspace. Save writes both in one MULTI/EXEC
// transaction without WATCH, so when two Save calls for the same peer
// race, the one that executes last wins.
type Store struct {
	client *redis.Client
}

// New wraps an already-connected Redis client. The caller owns the
// client's lifecycle (Close etc).
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// wireEntry is the JSON-on-the-wire shape of a persisted ratchet.State;
// kind distinguishes Null/Empty/NonEmpty since ratchet.State itself has
// no exported fields to marshal directly.
type wireEntry struct {
	Kind        string `json:"kind"` // "null" | "empty" | "nonempty"
	Key         string `json:"key,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ChainLen    uint64 `json:"chain_len,omitempty"`
}

func encodeState(s ratchet.State) wireEntry {
	switch {
	case s.IsNull():
		return wireEntry{Kind: "null"}
	case s.IsEmpty():
		return wireEntry{Kind: "empty"}
	default:
		key := s.Key()
		fp, _ := s.Fingerprint()
		return wireEntry{
			Kind:        "nonempty",
			Key:         hex.EncodeToString(key[:]),
			Fingerprint: hex.EncodeToString(fp[:]),
			ChainLen:    s.ChainLen(),
		}
	}
}

func decodeState(w wireEntry) (ratchet.State, error) {
	switch w.Kind {
	case "", "null":
		return ratchet.Null(), nil
	case "empty":
		return ratchet.Empty(), nil
	case "nonempty":
		key, err := decodeFixed32(w.Key)
		if err != nil {
			return ratchet.State{}, fmt.Errorf("redisratchet: decoding key: %w", err)
		}
		fp, err := decodeFixed32(w.Fingerprint)
		if err != nil {
			return ratchet.State{}, fmt.Errorf("redisratchet: decoding fingerprint: %w", err)
		}
		return ratchet.New(key, fp, w.ChainLen), nil
	default:
		return ratchet.State{}, fmt.Errorf("redisratchet: unknown ratchet state kind %q", w.Kind)
	}
}

func decodeFixed32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("redisratchet: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

type wirePair struct {
	Current  wireEntry `json:"current"`
	Previous wireEntry `json:"previous"`
}

// identityKey names the per-(remote static, session datum) ratchet
// record, following configs.ClientRatchetKey's two-%s template: the
// teacher keys per-client Redis state on (userID, peerID); here the
// equivalent pair is (remote static key, the application's session
// datum, stringified).
func identityKey(remoteStatic [ratchet.P384PublicKeySizeHint]byte, sessionData any) string {
	return fmt.Sprintf(configs.ClientRatchetKey, hex.EncodeToString(remoteStatic[:]), fmt.Sprint(sessionData))
}

func fingerprintKey(fp [32]byte) string {
	return "ratchet:fp:" + hex.EncodeToString(fp[:])
}

// RestoreByFingerprint looks up a previously persisted ratchet by its
// public fingerprint (used while processing an incoming X1's hinted
// fingerprints). Returns ratchet.Null() if unknown, not an error — an
// unrecognized fingerprint is an expected, routine outcome.
func (s *Store) RestoreByFingerprint(fingerprint [32]byte) (ratchet.State, error) {
	ctx := context.Background()
	identity, err := s.client.Get(ctx, fingerprintKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return ratchet.Null(), nil
	}
	if err != nil {
		return ratchet.State{}, fmt.Errorf("redisratchet: fingerprint lookup: %w", err)
	}
	raw, err := s.client.Get(ctx, identity).Result()
	if errors.Is(err, redis.Nil) {
		return ratchet.Null(), nil
	}
	if err != nil {
		return ratchet.State{}, fmt.Errorf("redisratchet: identity lookup: %w", err)
	}
	var wp wirePair
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		return ratchet.State{}, fmt.Errorf("redisratchet: decoding pair: %w", err)
	}
	current, err := decodeState(wp.Current)
	if err != nil {
		return ratchet.State{}, err
	}
	if current.FingerprintEquals(fingerprint) {
		return current, nil
	}
	previous, err := decodeState(wp.Previous)
	if err != nil {
		return ratchet.State{}, err
	}
	return previous, nil
}

// RestoreByIdentity looks up the ratchet pair persisted for a remote
// static key and application session datum, defaulting to a fresh
// InitialPair (Empty baseline, no previous) the first time a peer is
// seen.
func (s *Store) RestoreByIdentity(remoteStatic [ratchet.P384PublicKeySizeHint]byte, sessionData any) (ratchet.Pair, error) {
	raw, err := s.client.Get(context.Background(), identityKey(remoteStatic, sessionData)).Result()
	if errors.Is(err, redis.Nil) {
		return ratchet.InitialPair(), nil
	}
	if err != nil {
		return ratchet.Pair{}, fmt.Errorf("redisratchet: identity lookup: %w", err)
	}
	var wp wirePair
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		return ratchet.Pair{}, fmt.Errorf("redisratchet: decoding pair: %w", err)
	}
	current, err := decodeState(wp.Current)
	if err != nil {
		return ratchet.Pair{}, err
	}
	previous, err := decodeState(wp.Previous)
	if err != nil {
		return ratchet.Pair{}, err
	}
	return ratchet.Pair{Current: current, Previous: previous}, nil
}

// Save persists update atomically via a Redis pipeline (the identity
// record and the fingerprint index move together), returning only once
// the write is acknowledged — the durability guarantee section 8
// requires before the caller emits any packet computed under the
// successor ratchet's keys.
func (s *Store) Save(remoteStatic [ratchet.P384PublicKeySizeHint]byte, sessionData any, update ratchet.Update) error {
	ctx := context.Background()
	wp := wirePair{
		Current:  encodeState(update.Next.Current),
		Previous: encodeState(update.Next.Previous),
	}
	encoded, err := json.Marshal(wp)
	if err != nil {
		return fmt.Errorf("redisratchet: encoding pair: %w", err)
	}

	key := identityKey(remoteStatic, sessionData)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, encoded, 0)
	if update.HasAddedFingerprint {
		pipe.Set(ctx, fingerprintKey(update.AddedFingerprint), key, 0)
	}
	if update.HasDeletedFingerprint1 {
		pipe.Del(ctx, fingerprintKey(update.DeletedFingerprint1))
	}
	if update.HasDeletedFingerprint2 {
		pipe.Del(ctx, fingerprintKey(update.DeletedFingerprint2))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisratchet: save: %w", err)
	}
	return nil
}

package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"StrategyVault/internal/event"
)

const genesisSeed = "StrategyVault:genesis:v1"

// GenesisHash is the chain tip before the first event.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(genesisSeed))
}

// ChainHash links an event to its predecessor:
// SHA-256(prev || sequence as little-endian uint64 || digest).
func ChainHash(prev [32]byte, sequence int64, digest []byte) [32]byte {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(sequence))

	h := sha256.New()
	h.Write(prev[:])
	h.Write(seq[:])
	h.Write(digest)

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// EventDigest is the canonical byte form of a payload fed to the chain:
// a length-prefixed event type name followed by the JSON payload.
func EventDigest(evt event.Event) []byte {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: cannot encode %s: %v", evt.EventType(), err))
	}
	name := evt.EventType().String()
	digest := make([]byte, 0, len(name)+1+len(payload))
	digest = append(digest, byte(len(name)))
	digest = append(digest, name...)
	return append(digest, payload...)
}

// VerifyEnvelope reports whether env's state hash follows from its previous
// hash, sequence and payload. It does not check the link to the preceding
// envelope.
func VerifyEnvelope(env event.Envelope) bool {
	return ChainHash(env.PrevHash, env.Sequence, EventDigest(env.Payload)) == env.StateHash
}

// hashChain is the vault's running chain tip.
type hashChain struct {
	tip [32]byte
}

func newHashChain() *hashChain {
	return &hashChain{tip: GenesisHash()}
}

// link appends evt at sequence and returns the old and new tips.
func (c *hashChain) link(sequence int64, evt event.Event) (prev, next [32]byte) {
	prev = c.tip
	c.tip = ChainHash(prev, sequence, EventDigest(evt))
	return prev, c.tip
}

func (c *hashChain) reset(tip [32]byte) { c.tip = tip }

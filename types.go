package bisque

import (
	"github.com/google/uuid"

	"github.com/jward/bisque/internal/sechash"
	"github.com/jward/bisque/internal/store"
)

// Public type aliases for internal types used in the bisque API. These are
// Go type aliases (=), identical to the internal types at compile time.

type Digest = sechash.Digest
type Encoder = sechash.Encoder
type Hashable = sechash.Hashable
type ArtifactRecord = store.ArtifactRecord
type InputRecord = store.InputRecord

// Ledger is the SQLite database a LocalRepo records into. The dependency
// scanner can use the same handle as its import cache.
type Ledger = store.Store

// NodeID is the identity handle of an artifact or job. Every constructor
// assigns a fresh one, so two structurally identical nodes stay distinct
// graph nodes unless the caller reuses the same value.
type NodeID uuid.UUID

func newNodeID() NodeID {
	return NodeID(uuid.New())
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// HashValue and HashFile expose the canonical hashing primitives.
var (
	HashValue = sechash.HashValue
	HashFile  = sechash.HashFile
)

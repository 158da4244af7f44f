package store

import "time"

// Scanner cache types

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LastIndexed time.Time
}

type Import struct {
	ID           int64
	FileID       int64
	Source       string
	ImportedName *string
	Kind         string
}

// Import kinds.
const (
	ImportKindImport = "import" // import a.b / import "path"
	ImportKindFrom   = "from"   // from a.b import c
)

// Ledger types

// ArtifactRecord describes one published computed artifact.
type ArtifactRecord struct {
	Hash       string
	Kind       string
	JobHash    string
	Location   string
	RecordedAt time.Time
	Inputs     []InputRecord
}

// InputRecord is one ordered input of an ArtifactRecord.
type InputRecord struct {
	Ordinal  int
	Hash     string
	Location string
}

package bisque

import (
	"errors"

	"github.com/jward/bisque/internal/sechash"
)

var (
	// ErrNotImplemented is returned by Run for a job kind that has no
	// computation attached.
	ErrNotImplemented = errors.New("bisque: not implemented")

	// ErrUnknownKind is returned when a job's kind has no registered manifest.
	ErrUnknownKind = errors.New("bisque: unknown job kind")

	// ErrKindConflict is returned when a kind is registered twice with
	// different manifests.
	ErrKindConflict = errors.New("bisque: kind already registered")

	// ErrNotMaterialized is returned by BuildRepo.Path for an artifact whose
	// result does not exist yet.
	ErrNotMaterialized = errors.New("bisque: artifact not materialized")

	// ErrNoOutput is returned when a job finished without publishing its
	// output.
	ErrNoOutput = errors.New("bisque: job did not materialize its output")

	// ErrNoLedger is returned by ledger queries on a repo without
	// WithLedger.
	ErrNoLedger = errors.New("bisque: repo has no ledger")

	// ErrUnhashable is returned when a job parameter has no canonical
	// encoding.
	ErrUnhashable = sechash.ErrUnhashable
)

package store

import (
	"database/sql"
	"fmt"
)

// RecordArtifact inserts or replaces rec and its inputs within a single
// transaction.
func (s *Store) RecordArtifact(rec *ArtifactRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record artifact: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM artifact_inputs WHERE artifact_hash = ?", rec.Hash); err != nil {
		return fmt.Errorf("record artifact: clear inputs: %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO artifacts (hash, kind, job_hash, location, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Hash, rec.Kind, rec.JobHash, rec.Location, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", rec.Hash, err)
	}
	for _, in := range rec.Inputs {
		_, err := tx.Exec(
			`INSERT INTO artifact_inputs (artifact_hash, ordinal, input_hash, input_location)
			 VALUES (?, ?, ?, ?)`,
			rec.Hash, in.Ordinal, in.Hash, in.Location,
		)
		if err != nil {
			return fmt.Errorf("record artifact %s: input %d: %w", rec.Hash, in.Ordinal, err)
		}
	}
	return tx.Commit()
}

const artifactCols = "hash, kind, job_hash, location, recorded_at"

func scanArtifact(scanner interface{ Scan(...any) error }) (*ArtifactRecord, error) {
	rec := &ArtifactRecord{}
	var recordedAt sql.NullTime
	if err := scanner.Scan(&rec.Hash, &rec.Kind, &rec.JobHash, &rec.Location, &recordedAt); err != nil {
		return nil, err
	}
	rec.RecordedAt = recordedAt.Time
	return rec, nil
}

// ArtifactByHash returns the record for hash with its inputs, or nil if the
// hash was never recorded.
func (s *Store) ArtifactByHash(hash string) (*ArtifactRecord, error) {
	rec, err := scanArtifact(s.db.QueryRow("SELECT "+artifactCols+" FROM artifacts WHERE hash = ?", hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact by hash: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT ordinal, input_hash, input_location FROM artifact_inputs WHERE artifact_hash = ? ORDER BY ordinal",
		hash,
	)
	if err != nil {
		return nil, fmt.Errorf("artifact inputs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var in InputRecord
		if err := rows.Scan(&in.Ordinal, &in.Hash, &in.Location); err != nil {
			return nil, fmt.Errorf("scan artifact input: %w", err)
		}
		rec.Inputs = append(rec.Inputs, in)
	}
	return rec, rows.Err()
}

// Artifacts lists recorded artifacts, optionally restricted to one kind,
// oldest first. Inputs are not loaded.
func (s *Store) Artifacts(kind string) ([]*ArtifactRecord, error) {
	query := "SELECT " + artifactCols + " FROM artifacts"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY recorded_at, hash"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: %w", err)
	}
	defer rows.Close()
	var recs []*ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ArtifactsConsuming returns the hashes of recorded artifacts that list
// inputHash among their inputs.
func (s *Store) ArtifactsConsuming(inputHash string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT artifact_hash FROM artifact_inputs WHERE input_hash = ? ORDER BY artifact_hash",
		inputHash,
	)
	if err != nil {
		return nil, fmt.Errorf("artifacts consuming: %w", err)
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

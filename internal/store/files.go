package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	var lastIndexed sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, language, hash, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.LastIndexed = lastIndexed.Time
	return f, nil
}

// ReplaceFileImports upserts f by path and replaces its imports in one
// transaction. f.ID and the ID/FileID of every import are set on success.
func (s *Store) ReplaceFileImports(f *File, imps []*Import) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace imports: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO files (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET language = excluded.language, hash = excluded.hash,
		 last_indexed = excluded.last_indexed`,
		f.Path, f.Language, f.Hash, f.LastIndexed,
	)
	if err != nil {
		return fmt.Errorf("replace imports: upsert file: %w", err)
	}
	if err := tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&f.ID); err != nil {
		return fmt.Errorf("replace imports: file id: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM imports WHERE file_id = ?", f.ID); err != nil {
		return fmt.Errorf("replace imports: delete: %w", err)
	}
	for _, imp := range imps {
		imp.FileID = f.ID
		if imp.Kind == "" {
			imp.Kind = ImportKindImport
		}
		res, err := tx.Exec(
			"INSERT INTO imports (file_id, source, imported_name, kind) VALUES (?, ?, ?, ?)",
			imp.FileID, imp.Source, imp.ImportedName, imp.Kind,
		)
		if err != nil {
			return fmt.Errorf("replace imports: insert %q: %w", imp.Source, err)
		}
		if imp.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
	}
	return tx.Commit()
}

// --- Import operations ---

func (s *Store) ImportsByFile(fileID int64) ([]*Import, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, source, imported_name, kind FROM imports WHERE file_id = ? ORDER BY id",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("imports by file: %w", err)
	}
	defer rows.Close()
	var imports []*Import
	for rows.Next() {
		imp := &Import{}
		if err := rows.Scan(&imp.ID, &imp.FileID, &imp.Source, &imp.ImportedName, &imp.Kind); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

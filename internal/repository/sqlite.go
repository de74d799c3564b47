package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/hla-metadata-dictionary/internal/domain"
)

// SQLStore serves the raw fact tables from an embedded SQLite database.
// List columns are stored as JSON arrays.
type SQLStore struct {
	db  *sql.DB
	log *logrus.Logger
}

var (
	_ domain.FactRepository  = (*SQLStore)(nil)
	_ domain.DatasetImporter = (*SQLStore)(nil)
)

// OpenSQLite opens (creating if needed) the database file and its schema.
func OpenSQLite(path string, logger *logrus.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", path).Info("SQLite fact store opened")
	return NewSQLStore(db, logger), nil
}

// NewSQLStore wraps an already opened database whose schema exists.
func NewSQLStore(db *sql.DB, logger *logrus.Logger) *SQLStore {
	return &SQLStore{db: db, log: logger}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hla_fact_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		typing_name TEXT NOT NULL,
		typing_method TEXT NOT NULL,
		p_groups TEXT NOT NULL DEFAULT '[]',
		g_groups TEXT NOT NULL DEFAULT '[]',
		serologies TEXT NOT NULL DEFAULT '[]',
		tce_group TEXT NOT NULL DEFAULT '',
		small_g_groups TEXT NOT NULL DEFAULT '[]',
		scoring_payload TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_hla_fact_rows_lookup ON hla_fact_rows(version, locus, typing_name);

	CREATE TABLE IF NOT EXISTS hla_allele_names (
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		lookup_name TEXT NOT NULL,
		current_allele_name TEXT NOT NULL,
		PRIMARY KEY (version, locus, lookup_name, current_allele_name)
	);

	CREATE TABLE IF NOT EXISTS hla_allele_groups (
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		group_kind TEXT NOT NULL,
		group_name TEXT NOT NULL,
		allele_name TEXT NOT NULL,
		PRIMARY KEY (version, locus, group_kind, group_name, allele_name)
	);

	CREATE TABLE IF NOT EXISTS hla_group_p_groups (
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		group_kind TEXT NOT NULL,
		group_name TEXT NOT NULL,
		p_group TEXT,
		PRIMARY KEY (version, locus, group_kind, group_name)
	);

	CREATE TABLE IF NOT EXISTS hla_serology_alleles (
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		serology TEXT NOT NULL,
		allele_name TEXT NOT NULL,
		p_group TEXT NOT NULL DEFAULT '',
		g_group TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (version, locus, serology, allele_name)
	);
	`

	_, err := db.Exec(schema)
	return err
}

// RowsFor returns the fact rows stored under the key's lookup name.
func (s *SQLStore) RowsFor(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT typing_name, typing_method, p_groups, g_groups, serologies,
		       tce_group, small_g_groups, scoring_payload
		FROM hla_fact_rows
		WHERE version = ? AND locus = ? AND typing_name = ?
		ORDER BY id`,
		key.Version, key.Locus.String(), key.LookupName,
	)
	if err != nil {
		return nil, s.queryFailed(key, "fact rows", err)
	}
	defer rows.Close()

	var result []domain.RawFactRow
	for rows.Next() {
		row := domain.RawFactRow{Locus: key.Locus}
		var method, pGroups, gGroups, serologies, smallGGroups string
		var payload []byte
		if err := rows.Scan(&row.TypingName, &method, &pGroups, &gGroups, &serologies,
			&row.TceGroup, &smallGGroups, &payload); err != nil {
			return nil, s.queryFailed(key, "fact rows", err)
		}
		row.TypingMethod = domain.TypingMethod(method)
		for _, column := range []struct {
			raw  string
			dest *[]string
		}{
			{pGroups, &row.MatchingPGroups},
			{gGroups, &row.MatchingGGroups},
			{serologies, &row.MatchingSerologies},
			{smallGGroups, &row.SmallGGroups},
		} {
			if err := json.Unmarshal([]byte(column.raw), column.dest); err != nil {
				return nil, fmt.Errorf("decoding list column for %s: %w", key, err)
			}
		}
		if len(payload) > 0 {
			row.ScoringPayload = json.RawMessage(payload)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryFailed(key, "fact rows", err)
	}
	return result, nil
}

// CurrentAlleleNames returns the current names mapped from the key's lookup name.
func (s *SQLStore) CurrentAlleleNames(ctx context.Context, key domain.LookupKey) ([]string, error) {
	names, err := s.queryStrings(ctx, `
		SELECT current_allele_name FROM hla_allele_names
		WHERE version = ? AND locus = ? AND lookup_name = ?
		ORDER BY current_allele_name`,
		key.Version, key.Locus.String(), key.LookupName,
	)
	if err != nil {
		return nil, s.queryFailed(key, "allele names", err)
	}
	return names, nil
}

// GroupMembers returns the alleles of a P, G or small-g group.
func (s *SQLStore) GroupMembers(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) ([]string, error) {
	members, err := s.queryStrings(ctx, `
		SELECT allele_name FROM hla_allele_groups
		WHERE version = ? AND locus = ? AND group_kind = ? AND group_name = ?
		ORDER BY allele_name`,
		key.Version, key.Locus.String(), string(kind), key.LookupName,
	)
	if err != nil {
		return nil, s.queryFailed(key, "group members", err)
	}
	return members, nil
}

// GroupPGroup returns the P group a G or small-g group maps to.
func (s *SQLStore) GroupPGroup(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) (string, bool, error) {
	var pGroup sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT p_group FROM hla_group_p_groups
		WHERE version = ? AND locus = ? AND group_kind = ? AND group_name = ?`,
		key.Version, key.Locus.String(), string(kind), key.LookupName,
	).Scan(&pGroup)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.queryFailed(key, "group P group", err)
	}
	return pGroup.String, true, nil
}

// SerologyAlleles returns the alleles mapped to a serology.
func (s *SQLStore) SerologyAlleles(ctx context.Context, key domain.LookupKey) ([]domain.SerologyAlleleMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT allele_name, p_group, g_group FROM hla_serology_alleles
		WHERE version = ? AND locus = ? AND serology = ?
		ORDER BY allele_name`,
		key.Version, key.Locus.String(), key.LookupName,
	)
	if err != nil {
		return nil, s.queryFailed(key, "serology alleles", err)
	}
	defer rows.Close()

	var mappings []domain.SerologyAlleleMapping
	for rows.Next() {
		var mapping domain.SerologyAlleleMapping
		if err := rows.Scan(&mapping.AlleleName, &mapping.PGroup, &mapping.GGroup); err != nil {
			return nil, s.queryFailed(key, "serology alleles", err)
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryFailed(key, "serology alleles", err)
	}
	return mappings, nil
}

// Import replaces the dataset's nomenclature version in a single transaction.
func (s *SQLStore) Import(ctx context.Context, dataset *domain.Dataset) error {
	if err := dataset.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range versionedTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE version = ?", dataset.Version); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, row := range dataset.FactRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hla_fact_rows (
				version, locus, typing_name, typing_method, p_groups, g_groups,
				serologies, tce_group, small_g_groups, scoring_payload
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dataset.Version, row.Locus.String(), domain.FormatLookupName(row.TypingName), string(row.TypingMethod),
			encodeList(row.MatchingPGroups), encodeList(row.MatchingGGroups), encodeList(row.MatchingSerologies),
			row.TceGroup, encodeList(row.SmallGGroups), nullablePayload(row.ScoringPayload),
		); err != nil {
			return fmt.Errorf("inserting fact row %s*%s: %w", row.Locus, row.TypingName, err)
		}
	}

	for _, entry := range dataset.AlleleNames {
		for _, current := range entry.CurrentAlleleNames {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO hla_allele_names (version, locus, lookup_name, current_allele_name)
				VALUES (?, ?, ?, ?)`,
				dataset.Version, entry.Locus.String(), domain.FormatLookupName(entry.LookupName), current,
			); err != nil {
				return fmt.Errorf("inserting allele name %s*%s: %w", entry.Locus, entry.LookupName, err)
			}
		}
	}

	for _, group := range dataset.AlleleGroups {
		name := domain.FormatLookupName(group.Name)
		for _, member := range group.Members {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO hla_allele_groups (version, locus, group_kind, group_name, allele_name)
				VALUES (?, ?, ?, ?, ?)`,
				dataset.Version, group.Locus.String(), string(group.Kind), name, member,
			); err != nil {
				return fmt.Errorf("inserting group member %s*%s: %w", group.Locus, group.Name, err)
			}
		}
		if group.Kind == domain.GroupKindP {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO hla_group_p_groups (version, locus, group_kind, group_name, p_group)
			VALUES (?, ?, ?, ?, ?)`,
			dataset.Version, group.Locus.String(), string(group.Kind), name, nullableString(group.PGroup),
		); err != nil {
			return fmt.Errorf("inserting P group of %s*%s: %w", group.Locus, group.Name, err)
		}
	}

	for _, entry := range dataset.SerologyAlleles {
		for _, allele := range entry.Alleles {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO hla_serology_alleles (version, locus, serology, allele_name, p_group, g_group)
				VALUES (?, ?, ?, ?, ?, ?)`,
				dataset.Version, entry.Locus.String(), domain.FormatLookupName(entry.Serology),
				allele.AlleleName, allele.PGroup, allele.GGroup,
			); err != nil {
				return fmt.Errorf("inserting serology allele %s*%s: %w", entry.Locus, entry.Serology, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"version":   dataset.Version,
		"fact_rows": len(dataset.FactRows),
		"groups":    len(dataset.AlleleGroups),
	}).Info("Nomenclature version imported")
	return nil
}

func (s *SQLStore) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (s *SQLStore) queryFailed(key domain.LookupKey, what string, err error) error {
	s.log.WithFields(logrus.Fields{
		"locus":   key.Locus.String(),
		"name":    key.LookupName,
		"version": key.Version,
		"error":   err,
	}).Error("Failed to query " + what)
	return fmt.Errorf("querying %s for %s: %w", what, key, err)
}

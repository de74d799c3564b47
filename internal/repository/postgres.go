package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hla-metadata-dictionary/internal/domain"
)

// PostgresStore serves the raw fact tables from PostgreSQL. The schema is
// created by the migration runner.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var (
	_ domain.FactRepository  = (*PostgresStore)(nil)
	_ domain.DatasetImporter = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new fact store over a connection pool
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

// RowsFor returns the fact rows stored under the key's lookup name.
func (r *PostgresStore) RowsFor(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	query := `
		SELECT typing_name, typing_method, p_groups, g_groups, serologies,
			   tce_group, small_g_groups, scoring_payload
		FROM hla_fact_rows
		WHERE version = $1 AND locus = $2 AND typing_name = $3
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, key.Version, key.Locus.String(), key.LookupName)
	if err != nil {
		return nil, r.queryFailed(key, "fact rows", err)
	}
	defer rows.Close()

	var result []domain.RawFactRow
	for rows.Next() {
		row := domain.RawFactRow{Locus: key.Locus}
		var method string
		var payload []byte
		if err := rows.Scan(
			&row.TypingName,
			&method,
			&row.MatchingPGroups,
			&row.MatchingGGroups,
			&row.MatchingSerologies,
			&row.TceGroup,
			&row.SmallGGroups,
			&payload,
		); err != nil {
			return nil, r.queryFailed(key, "fact rows", err)
		}
		row.TypingMethod = domain.TypingMethod(method)
		if len(payload) > 0 {
			row.ScoringPayload = payload
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, r.queryFailed(key, "fact rows", err)
	}
	return result, nil
}

// CurrentAlleleNames returns the current names mapped from the key's lookup name.
func (r *PostgresStore) CurrentAlleleNames(ctx context.Context, key domain.LookupKey) ([]string, error) {
	query := `
		SELECT current_allele_name FROM hla_allele_names
		WHERE version = $1 AND locus = $2 AND lookup_name = $3
		ORDER BY current_allele_name`

	names, err := r.queryStrings(ctx, query, key.Version, key.Locus.String(), key.LookupName)
	if err != nil {
		return nil, r.queryFailed(key, "allele names", err)
	}
	return names, nil
}

// GroupMembers returns the alleles of a P, G or small-g group.
func (r *PostgresStore) GroupMembers(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) ([]string, error) {
	query := `
		SELECT allele_name FROM hla_allele_groups
		WHERE version = $1 AND locus = $2 AND group_kind = $3 AND group_name = $4
		ORDER BY allele_name`

	members, err := r.queryStrings(ctx, query, key.Version, key.Locus.String(), string(kind), key.LookupName)
	if err != nil {
		return nil, r.queryFailed(key, "group members", err)
	}
	return members, nil
}

// GroupPGroup returns the P group a G or small-g group maps to.
func (r *PostgresStore) GroupPGroup(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) (string, bool, error) {
	query := `
		SELECT p_group FROM hla_group_p_groups
		WHERE version = $1 AND locus = $2 AND group_kind = $3 AND group_name = $4`

	var pGroup *string
	err := r.db.QueryRow(ctx, query, key.Version, key.Locus.String(), string(kind), key.LookupName).Scan(&pGroup)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, r.queryFailed(key, "group P group", err)
	}
	if pGroup == nil {
		return "", true, nil
	}
	return *pGroup, true, nil
}

// SerologyAlleles returns the alleles mapped to a serology.
func (r *PostgresStore) SerologyAlleles(ctx context.Context, key domain.LookupKey) ([]domain.SerologyAlleleMapping, error) {
	query := `
		SELECT allele_name, p_group, g_group FROM hla_serology_alleles
		WHERE version = $1 AND locus = $2 AND serology = $3
		ORDER BY allele_name`

	rows, err := r.db.Query(ctx, query, key.Version, key.Locus.String(), key.LookupName)
	if err != nil {
		return nil, r.queryFailed(key, "serology alleles", err)
	}
	defer rows.Close()

	var mappings []domain.SerologyAlleleMapping
	for rows.Next() {
		var mapping domain.SerologyAlleleMapping
		if err := rows.Scan(&mapping.AlleleName, &mapping.PGroup, &mapping.GGroup); err != nil {
			return nil, r.queryFailed(key, "serology alleles", err)
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, r.queryFailed(key, "serology alleles", err)
	}
	return mappings, nil
}

// Import replaces the dataset's nomenclature version in a single transaction.
func (r *PostgresStore) Import(ctx context.Context, dataset *domain.Dataset) error {
	if err := dataset.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, table := range versionedTables {
		batch.Queue("DELETE FROM "+table+" WHERE version = $1", dataset.Version)
	}

	for _, row := range dataset.FactRows {
		batch.Queue(`
			INSERT INTO hla_fact_rows (
				version, locus, typing_name, typing_method, p_groups, g_groups,
				serologies, tce_group, small_g_groups, scoring_payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			dataset.Version, row.Locus.String(), domain.FormatLookupName(row.TypingName), string(row.TypingMethod),
			nonNil(row.MatchingPGroups), nonNil(row.MatchingGGroups), nonNil(row.MatchingSerologies),
			row.TceGroup, nonNil(row.SmallGGroups), nullablePayload(row.ScoringPayload),
		)
	}

	for _, entry := range dataset.AlleleNames {
		for _, current := range entry.CurrentAlleleNames {
			batch.Queue(`
				INSERT INTO hla_allele_names (version, locus, lookup_name, current_allele_name)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				dataset.Version, entry.Locus.String(), domain.FormatLookupName(entry.LookupName), current,
			)
		}
	}

	for _, group := range dataset.AlleleGroups {
		name := domain.FormatLookupName(group.Name)
		for _, member := range group.Members {
			batch.Queue(`
				INSERT INTO hla_allele_groups (version, locus, group_kind, group_name, allele_name)
				VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				dataset.Version, group.Locus.String(), string(group.Kind), name, member,
			)
		}
		if group.Kind == domain.GroupKindP {
			continue
		}
		batch.Queue(`
			INSERT INTO hla_group_p_groups (version, locus, group_kind, group_name, p_group)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (version, locus, group_kind, group_name) DO UPDATE SET p_group = EXCLUDED.p_group`,
			dataset.Version, group.Locus.String(), string(group.Kind), name, nullableString(group.PGroup),
		)
	}

	for _, entry := range dataset.SerologyAlleles {
		for _, allele := range entry.Alleles {
			batch.Queue(`
				INSERT INTO hla_serology_alleles (version, locus, serology, allele_name, p_group, g_group)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (version, locus, serology, allele_name)
				DO UPDATE SET p_group = EXCLUDED.p_group, g_group = EXCLUDED.g_group`,
				dataset.Version, entry.Locus.String(), domain.FormatLookupName(entry.Serology),
				allele.AlleleName, allele.PGroup, allele.GGroup,
			)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.WithFields(logrus.Fields{
			"version": dataset.Version,
			"error":   err,
		}).Error("Failed to import nomenclature version")
		return fmt.Errorf("importing version %s: %w", dataset.Version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"version":   dataset.Version,
		"fact_rows": len(dataset.FactRows),
		"groups":    len(dataset.AlleleGroups),
	}).Info("Nomenclature version imported")
	return nil
}

func (r *PostgresStore) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PostgresStore) queryFailed(key domain.LookupKey, what string, err error) error {
	r.log.WithFields(logrus.Fields{
		"locus":   key.Locus.String(),
		"name":    key.LookupName,
		"version": key.Version,
		"error":   err,
	}).Error("Failed to query " + what)
	return fmt.Errorf("querying %s for %s: %w", what, key, err)
}

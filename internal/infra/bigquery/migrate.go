package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-ledger/internal/logger"
)

// Migrations holds the schema migrations shipped with the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Migration is a single migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a migration already recorded in schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migration files are named 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ParseMigrationFilename extracts version and name from a migration file name.
func ParseMigrationFilename(filename string) (int, string, bool) {
	m := migrationPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return version, m[2], true
}

// ReadMigrations reads every migration under dir in fsys, substituting the
// {{PROJECT_ID}} and {{DATASET_ID}} placeholders. The checksum is taken
// before substitution so the same migration matches across projects.
func ReadMigrations(ctx context.Context, fsys fs.FS, dir, projectID, datasetID string) ([]Migration, error) {
	log := logger.FromContext(ctx)

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading directory: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := ParseMigrationFilename(e.Name())
		if !ok {
			log.Warn().Str("file", e.Name()).Msg("Skipping file with invalid migration name")
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", e.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator applies pending migrations to one dataset.
type Migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

// NewMigrator creates a Migrator.
func NewMigrator(client *bigquery.Client, projectID, datasetID, appliedBy string) *Migrator {
	if appliedBy == "" {
		appliedBy = "migrate-cli"
	}
	return &Migrator{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}
}

// Apply runs every migration not yet recorded and returns how many ran.
func (m *Migrator) Apply(ctx context.Context, migrations []Migration) (int, error) {
	log := logger.FromContext(ctx)

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("Migrator.Apply: ensure schema_migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrator.Apply: %w", err)
	}
	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	count := 0
	for _, mig := range migrations {
		if am, ok := done[mig.Version]; ok {
			if am.Checksum != "" && am.Checksum != mig.Checksum {
				log.Warn().Int("version", mig.Version).Str("name", mig.Name).Msg("Applied migration was modified since it ran")
			}
			log.Debug().Int("version", mig.Version).Str("name", mig.Name).Msg("Migration already applied")
			continue
		}

		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying migration")
		if err := runQuery(ctx, m.client.Query(mig.SQL)); err != nil {
			return count, fmt.Errorf("Migrator.Apply: executing %s: %w", mig.Filename, err)
		}
		if err := m.recordMigration(ctx, mig); err != nil {
			return count, fmt.Errorf("Migrator.Apply: recording %s: %w", mig.Filename, err)
		}
		count++
	}
	return count, nil
}

func (m *Migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.projectID, m.datasetID, name)
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return runQuery(ctx, m.client.Query(`
		CREATE TABLE IF NOT EXISTS `+m.table("schema_migrations")+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

func (m *Migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table("schema_migrations") + `
		ORDER BY version ASC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func (m *Migrator) recordMigration(ctx context.Context, mig Migration) error {
	q := m.client.Query(`
		INSERT INTO ` + m.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return runQuery(ctx, q)
}

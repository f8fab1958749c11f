package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables read by PostgresSource. Each row holds one JSONB
// definition in the same shape as the file format.
const Schema = `
CREATE TABLE IF NOT EXISTS decider_features (
	name       text PRIMARY KEY,
	definition jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS decider_mutex_groups (
	id         text PRIMARY KEY,
	definition jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);`

const (
	selectFeaturesSQL    = `SELECT definition FROM decider_features ORDER BY name`
	selectMutexGroupsSQL = `SELECT definition FROM decider_mutex_groups ORDER BY id`
	insertFeatureSQL     = `INSERT INTO decider_features (name, definition) VALUES ($1, $2)`
	insertMutexGroupSQL  = `INSERT INTO decider_mutex_groups (id, definition) VALUES ($1, $2)`
)

// PostgresSource reads feature definitions from PostgreSQL.
// Both tables are read in one repeatable-read transaction so a load never
// mixes two publishes.
type PostgresSource struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresSource creates a PostgreSQL-backed source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	name := "postgres"
	if cfg := pool.Config(); cfg != nil && cfg.ConnConfig != nil {
		name = fmt.Sprintf("postgres:%s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	}
	return &PostgresSource{pool: pool, name: name}
}

// EnsureSchema creates the tables if they do not exist.
func (p *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return ioError(p.String(), fmt.Errorf("ensure schema: %w", err))
	}
	return nil
}

// Load reads all features and mutex groups.
func (p *PostgresSource) Load(ctx context.Context) (*Document, error) {
	var featureDefs, groupDefs [][]byte
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		if featureDefs, err = queryDefinitions(ctx, tx, selectFeaturesSQL); err != nil {
			return err
		}
		groupDefs, err = queryDefinitions(ctx, tx, selectMutexGroupsSQL)
		return err
	})
	if err != nil {
		return nil, ioError(p.String(), err)
	}

	doc, cerr := documentFromRows(featureDefs, groupDefs)
	if cerr != nil {
		cerr.Source = p.String()
		return nil, cerr
	}
	return doc, nil
}

// Publish replaces the stored configuration with doc in one transaction.
// The document is not validated here; callers run Prepare first.
func (p *PostgresSource) Publish(ctx context.Context, doc *Document) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM decider_mutex_groups`)
	batch.Queue(`DELETE FROM decider_features`)
	for _, f := range doc.Features {
		def, err := json.Marshal(f)
		if err != nil {
			return malformed(f.Name, err)
		}
		batch.Queue(insertFeatureSQL, f.Name, def)
	}
	for _, g := range doc.MutexGroups {
		def, err := json.Marshal(g)
		if err != nil {
			return malformedf("", "mutex group %q: %w", g.ID, err)
		}
		batch.Queue(insertMutexGroupSQL, g.ID, def)
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return ioError(p.String(), fmt.Errorf("publish: %w", err))
	}
	return nil
}

func (p *PostgresSource) String() string { return p.name }

// Pool returns the underlying connection pool.
func (p *PostgresSource) Pool() *pgxpool.Pool { return p.pool }

// Close closes the database connection pool.
func (p *PostgresSource) Close() error {
	p.pool.Close()
	return nil
}

func queryDefinitions(ctx context.Context, tx pgx.Tx, sql string) ([][]byte, error) {
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[[]byte])
}

// documentFromRows decodes JSONB definitions strictly, like file documents.
func documentFromRows(featureDefs, groupDefs [][]byte) (*Document, *ConfigError) {
	doc := &Document{
		Features:    make([]Feature, 0, len(featureDefs)),
		MutexGroups: make([]MutexGroup, 0, len(groupDefs)),
	}
	for i, def := range featureDefs {
		var f Feature
		if err := decodeStrict(def, &f); err != nil {
			return nil, malformedf("", "decider_features row %d: %w", i, err)
		}
		doc.Features = append(doc.Features, f)
	}
	for i, def := range groupDefs {
		var g MutexGroup
		if err := decodeStrict(def, &g); err != nil {
			return nil, malformedf("", "decider_mutex_groups row %d: %w", i, err)
		}
		doc.MutexGroups = append(doc.MutexGroups, g)
	}
	return doc, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/inventory/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres stores inventories in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// Connect opens and pings a pool.
func Connect(ctx context.Context, cfg PoolConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close implements Store.
func (p *Postgres) Close() { p.pool.Close() }

type datasetRow struct {
	ID     int64             `db:"id"`
	Name   string            `db:"name"`
	Fields map[string]string `db:"fields"`
}

type attributeRow struct {
	ID          int64  `db:"id"`
	DatasetID   int64  `db:"dataset_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// Inventory implements Store.
func (p *Postgres) Inventory(ctx context.Context, id int64) (core.Inventory, error) {
	var name string
	err := p.pool.QueryRow(ctx, `SELECT name FROM inventories WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Inventory{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return core.Inventory{}, fmt.Errorf("load inventory %d: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, name, fields
		FROM inventory_datasets
		WHERE inventory_id = $1
		ORDER BY position, id`, id)
	if err != nil {
		return core.Inventory{}, fmt.Errorf("load datasets: %w", err)
	}
	datasets, err := pgx.CollectRows(rows, pgx.RowToStructByName[datasetRow])
	if err != nil {
		return core.Inventory{}, fmt.Errorf("load datasets: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT a.id, a.dataset_id, a.name, a.description
		FROM inventory_attributes a
		JOIN inventory_datasets d ON d.id = a.dataset_id
		WHERE d.inventory_id = $1
		ORDER BY a.dataset_id, a.position, a.id`, id)
	if err != nil {
		return core.Inventory{}, fmt.Errorf("load attributes: %w", err)
	}
	attrs, err := pgx.CollectRows(rows, pgx.RowToStructByName[attributeRow])
	if err != nil {
		return core.Inventory{}, fmt.Errorf("load attributes: %w", err)
	}
	byDataset := make(map[int64][]core.ServerAttribute)
	for _, a := range attrs {
		byDataset[a.DatasetID] = append(byDataset[a.DatasetID], core.ServerAttribute{
			AttributeID:          a.ID,
			AttributeName:        core.Text(a.Name),
			AttributeDescription: core.Text(a.Description),
		})
	}

	inv := core.Inventory{
		InventoryID:   core.Text(fmt.Sprint(id)),
		InventoryName: core.Text(name),
		DatasetCount:  len(datasets),
		Datasets:      make([]core.ServerDataset, 0, len(datasets)),
	}
	for _, ds := range datasets {
		inv.Datasets = append(inv.Datasets, core.ServerDataset{
			DatasetID:   ds.ID,
			DatasetName: core.Text(ds.Name),
			Fields:      mapToFields(ds.Fields),
			Attributes:  append([]core.ServerAttribute{}, byDataset[ds.ID]...),
		})
	}
	return inv, nil
}

// Save implements Store. The whole submission is written in one transaction.
func (p *Postgres) Save(ctx context.Context, sub Submission) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	id, err := upsertInventory(ctx, tx, sub)
	if err != nil {
		return 0, err
	}

	owned, err := ownedIDs(ctx, tx, `SELECT id FROM inventory_datasets WHERE inventory_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("list datasets: %w", err)
	}

	kept := make([]int64, 0, len(sub.Datasets))
	for i, ds := range sub.Datasets {
		dsID, err := saveDataset(ctx, tx, id, i, ds, owned)
		if err != nil {
			return 0, err
		}
		kept = append(kept, dsID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM inventory_datasets WHERE inventory_id = $1 AND NOT (id = ANY($2))`,
		id, kept); err != nil {
		return 0, fmt.Errorf("delete removed datasets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func upsertInventory(ctx context.Context, q DBTX, sub Submission) (int64, error) {
	if sub.InventoryID > 0 {
		tag, err := q.Exec(ctx,
			`UPDATE inventories SET status = $2, updated_at = now() WHERE id = $1`,
			sub.InventoryID, string(sub.Status))
		if err != nil {
			return 0, fmt.Errorf("update inventory: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: %d", ErrNotFound, sub.InventoryID)
		}
		return sub.InventoryID, nil
	}

	var count int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM inventories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count inventories: %w", err)
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO inventories (name, status) VALUES ($1, $2) RETURNING id`,
		inventoryName(count+1), string(sub.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert inventory: %w", err)
	}
	return id, nil
}

func saveDataset(ctx context.Context, q DBTX, inventoryID int64, pos int, ds core.ServerDataset, owned map[int64]bool) (int64, error) {
	fields := fieldsToMap(ds.Fields)

	id := ds.DatasetID
	if owned[id] {
		delete(owned, id)
		if _, err := q.Exec(ctx,
			`UPDATE inventory_datasets SET position = $2, name = $3, fields = $4 WHERE id = $1`,
			id, pos, string(ds.DatasetName), fields); err != nil {
			return 0, fmt.Errorf("update dataset %d: %w", id, err)
		}
	} else {
		err := q.QueryRow(ctx,
			`INSERT INTO inventory_datasets (inventory_id, position, name, fields) VALUES ($1, $2, $3, $4) RETURNING id`,
			inventoryID, pos, string(ds.DatasetName), fields).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert dataset %q: %w", ds.DatasetName, err)
		}
	}

	ownedAttrs, err := ownedIDs(ctx, q, `SELECT id FROM inventory_attributes WHERE dataset_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("list attributes: %w", err)
	}
	kept := make([]int64, 0, len(ds.Attributes))
	for i, a := range ds.Attributes {
		attrID := a.AttributeID
		if ownedAttrs[attrID] {
			delete(ownedAttrs, attrID)
			if _, err := q.Exec(ctx,
				`UPDATE inventory_attributes SET position = $2, name = $3, description = $4 WHERE id = $1`,
				attrID, i, string(a.AttributeName), string(a.AttributeDescription)); err != nil {
				return 0, fmt.Errorf("update attribute %d: %w", attrID, err)
			}
		} else {
			err := q.QueryRow(ctx,
				`INSERT INTO inventory_attributes (dataset_id, position, name, description) VALUES ($1, $2, $3, $4) RETURNING id`,
				id, i, string(a.AttributeName), string(a.AttributeDescription)).Scan(&attrID)
			if err != nil {
				return 0, fmt.Errorf("insert attribute %q: %w", a.AttributeName, err)
			}
		}
		kept = append(kept, attrID)
	}

	if _, err := q.Exec(ctx,
		`DELETE FROM inventory_attributes WHERE dataset_id = $1 AND NOT (id = ANY($2))`,
		id, kept); err != nil {
		return 0, fmt.Errorf("delete removed attributes: %w", err)
	}
	return id, nil
}

func ownedIDs(ctx context.Context, q DBTX, sql string, parent int64) (map[int64]bool, error) {
	rows, err := q.Query(ctx, sql, parent)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

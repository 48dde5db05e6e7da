package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// Repository implements ports.ScenarioRepository on SQLite.
// Every entity is one row holding its JSON snapshot.
type Repository struct {
	db  DBTX
	uow UnitOfWork
	now func() time.Time
}

// NewRepository creates a repository on db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, uow: NewSQLiteUnitOfWork(db), now: time.Now}
}

// Apply bumps the version row with a compare-and-set and writes ops in the same transaction.
func (r *Repository) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	next := baseVersion + 1
	err := r.uow.WithinTx(ctx, func(ctx context.Context, tx DBTX) error {
		if err := r.bumpVersion(ctx, tx, scenarioID, baseVersion); err != nil {
			return err
		}
		for _, op := range ops {
			if err := r.applyOne(ctx, tx, scenarioID, op); err != nil {
				return fmt.Errorf("applying %s %s %q: %w", op.Action, op.EntityType, op.EntityID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *Repository) bumpVersion(ctx context.Context, tx DBTX, scenarioID string, baseVersion int) error {
	updatedAt := r.now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	var err error
	if baseVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO scenarios (id, version, updated_at) VALUES (?, 1, ?) ON CONFLICT(id) DO NOTHING`,
			scenarioID, updatedAt)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE scenarios SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
			updatedAt, scenarioID, baseVersion)
	}
	if err != nil {
		return fmt.Errorf("updating scenario version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	stored, err := r.version(ctx, tx, scenarioID)
	if err != nil && !errors.Is(err, domain.ErrScenarioNotFound) {
		return err
	}
	return &domain.SyncConflictError{
		ScenarioID: scenarioID,
		Err:        fmt.Errorf("stored version %d, expected %d", stored, baseVersion),
	}
}

func (r *Repository) applyOne(ctx context.Context, tx DBTX, scenarioID string, op domain.Operation) error {
	switch op.Action {
	case domain.ActionCreate, domain.ActionUpdate:
		data, err := json.Marshal(op.Payload)
		if err != nil {
			return fmt.Errorf("marshaling snapshot: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (scenario_id, entity_type, entity_id, snapshot) VALUES (?, ?, ?, ?)
			 ON CONFLICT(scenario_id, entity_type, entity_id) DO UPDATE SET snapshot = excluded.snapshot`,
			scenarioID, string(op.EntityType), op.EntityID, string(data))
		return err
	case domain.ActionDelete:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM entities WHERE scenario_id = ? AND entity_type = ? AND entity_id = ?`,
			scenarioID, string(op.EntityType), op.EntityID)
		return err
	}
	return fmt.Errorf("unsupported action %q", op.Action)
}

func (r *Repository) version(ctx context.Context, db DBTX, scenarioID string) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT version FROM scenarios WHERE id = ?`, scenarioID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrScenarioNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("loading scenario version: %w", err)
	}
	return v, nil
}

// Load reads the version and the entity rows in one transaction.
func (r *Repository) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	var doc *domain.Document
	err := r.uow.WithinTx(ctx, func(ctx context.Context, tx DBTX) error {
		v, err := r.version(ctx, tx, scenarioID)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT entity_type, entity_id, snapshot FROM entities WHERE scenario_id = ? ORDER BY entity_type, entity_id`,
			scenarioID)
		if err != nil {
			return fmt.Errorf("querying entities: %w", err)
		}
		defer rows.Close()

		doc = &domain.Document{ScenarioID: scenarioID, Version: v}
		for rows.Next() {
			var kind, id, data string
			if err := rows.Scan(&kind, &id, &data); err != nil {
				return fmt.Errorf("scanning entity: %w", err)
			}
			var snap domain.Snapshot
			if err := json.Unmarshal([]byte(data), &snap); err != nil {
				return fmt.Errorf("decoding %s %q: %w", kind, id, err)
			}
			doc.Records = append(doc.Records, domain.Record{EntityType: domain.EntityType(kind), EntityID: id, Snapshot: snap})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the scenario row. Entity rows go with it through the foreign key.
func (r *Repository) Delete(ctx context.Context, scenarioID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, scenarioID); err != nil {
		return fmt.Errorf("deleting scenario: %w", err)
	}
	return nil
}

// List returns the stored scenario ids in order.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning scenario id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ ports.ScenarioRepository = (*Repository)(nil)

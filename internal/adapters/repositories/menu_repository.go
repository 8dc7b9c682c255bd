package repositories

import (
	"context"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/ports"
	"errors"
	"fmt"
)

// SQL-backed implementation of the MenuRepository port.
type SQLMenuRepository struct{ DB *db.DB }

func NewSQLMenuRepository(d *db.DB) *SQLMenuRepository {
	return &SQLMenuRepository{DB: d}
}

func (s *SQLMenuRepository) ListMenuItems(ctx context.Context) ([]ports.MenuItem, error) {
	if s.DB == nil {
		return nil, errors.New("sql menu repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, frequency FROM menu_items ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list menu items: query menu_items table: %w", err)
	}
	defer rows.Close()

	items := make([]ports.MenuItem, 0, 64)
	for rows.Next() {
		var it ports.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Frequency); err != nil {
			return nil, fmt.Errorf("list menu items: scan row: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list menu items: row iteration: %w", err)
	}

	return items, nil
}

// Persist selection counts so the index ranks the same after a restart.
func (s *SQLMenuRepository) SaveMenuItem(ctx context.Context, it ports.MenuItem) error {
	if s.DB == nil {
		return errors.New("sql menu repository: DB is nil")
	}

	q := s.DB.Upsert("menu_items", []string{"id"}, []string{"id", "name", "frequency"})
	if _, err := s.DB.Exec(ctx, q, it.ID, it.Name, it.Frequency); err != nil {
		return fmt.Errorf("save menu item %s: %w", it.ID, err)
	}
	return nil
}

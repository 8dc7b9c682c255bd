package repositories

import (
	"context"
	"database/sql"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
	"time"
)

// SQL-backed implementation of the OrderRepository port.
type SQLOrderRepository struct{ DB *db.DB }

func NewSQLOrderRepository(d *db.DB) *SQLOrderRepository {
	return &SQLOrderRepository{DB: d}
}

// Return pending orders, oldest first, with their items.
func (s *SQLOrderRepository) ListPendingOrders(ctx context.Context) (_ []domain.Order, err error) {
	defer obs.Time(ctx, "repo.ListPendingOrders")(&err)

	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}

	query := `
	SELECT
		id,
		restaurant_location_id,
		delivery_location_id,
		total,
		payment_method,
		is_premium,
		is_express,
		tw_earliest,
		tw_latest,
		status,
		created_at
	FROM orders
	WHERE status = ?
	ORDER BY created_at, id;
	`
	rows, err := s.DB.QueryContext(ctx, s.DB.Q(query), string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending orders: query orders table: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending orders: %w", err)
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending orders: row iteration: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemsQuery := `
	SELECT i.order_id, i.item_id, i.name, i.unit_price, i.quantity
	FROM order_items i
	JOIN orders o ON o.id = i.order_id
	WHERE o.status = ?
	ORDER BY i.order_id, i.seq;
	`
	itemRows, err := s.DB.QueryContext(ctx, s.DB.Q(itemsQuery), string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending orders: query order_items table: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID string
			it      domain.OrderItem
		)
		if err := itemRows.Scan(&orderID, &it.ID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("list pending orders: scan item row: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("list pending orders: item row iteration: %w", err)
	}

	return orders, nil
}

// Insert or replace an order together with its items.
func (s *SQLOrderRepository) SaveOrder(ctx context.Context, o domain.Order) (err error) {
	defer obs.Time(ctx, "repo.SaveOrder")(&err)

	if s.DB == nil {
		return errors.New("sql order repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save order %s: begin tx: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	cols := []string{
		"id", "restaurant_location_id", "delivery_location_id", "total", "payment_method",
		"is_premium", "is_express", "tw_earliest", "tw_latest", "status", "created_at",
	}
	var earliest, latest sql.NullString
	if w := o.TimeWindow; w != nil {
		earliest = formatNullTime(w.Earliest)
		latest = formatNullTime(w.Latest)
	}
	status := o.Status
	if status == "" {
		status = domain.StatusPending
	}
	payment := o.PaymentMethod
	if payment == "" {
		payment = domain.PaymentCash
	}

	_, err = tx.ExecContext(ctx, s.DB.Q(s.DB.Upsert("orders", []string{"id"}, cols)),
		o.ID, o.RestaurantLocationID, o.DeliveryLocationID, o.Total, string(payment),
		o.IsPremiumCustomer, o.IsExpress, earliest, latest, string(status), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save order %s: upsert: %w", o.ID, err)
	}

	if _, err := tx.ExecContext(ctx, s.DB.Q(`DELETE FROM order_items WHERE order_id = ?;`), o.ID); err != nil {
		return fmt.Errorf("save order %s: clear items: %w", o.ID, err)
	}

	insertItem := `
	INSERT INTO order_items (order_id, seq, item_id, name, unit_price, quantity)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	stmt, err := tx.PrepareContext(ctx, s.DB.Q(insertItem))
	if err != nil {
		return fmt.Errorf("save order %s: prepare item insert: %w", o.ID, err)
	}
	defer stmt.Close()

	for i, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, o.ID, i, it.ID, it.Name, it.UnitPrice, it.Quantity); err != nil {
			return fmt.Errorf("save order %s: insert item #%d: %w", o.ID, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save order %s: commit tx: %w", o.ID, err)
	}
	return nil
}

// Update the stored status, or return domain.ErrNotFound.
func (s *SQLOrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.DeliveryStatus) error {
	if s.DB == nil {
		return errors.New("sql order repository: DB is nil")
	}

	res, err := s.DB.Exec(ctx, `UPDATE orders SET status = ? WHERE id = ?;`, string(status), orderID)
	if err != nil {
		return fmt.Errorf("update order status %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status %s: rows affected: %w", orderID, err)
	}
	if n == 0 {
		return fmt.Errorf("update order status %s: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o                domain.Order
		payment, status  string
		created          string
		earliest, latest sql.NullString
	)
	err := r.Scan(
		&o.ID, &o.RestaurantLocationID, &o.DeliveryLocationID, &o.Total, &payment,
		&o.IsPremiumCustomer, &o.IsExpress, &earliest, &latest, &status, &created,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	if o.PaymentMethod, err = domain.ParsePaymentMethod(payment); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.Status, err = domain.ParseDeliveryStatus(status); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: created_at: %w", o.ID, err)
	}

	if earliest.Valid || latest.Valid {
		w := &domain.TimeWindow{}
		if earliest.Valid {
			if w.Earliest, err = parseTime(earliest.String); err != nil {
				return domain.Order{}, fmt.Errorf("order %s: tw_earliest: %w", o.ID, err)
			}
		}
		if latest.Valid {
			if w.Latest, err = parseTime(latest.String); err != nil {
				return domain.Order{}, fmt.Errorf("order %s: tw_latest: %w", o.ID, err)
			}
		}
		o.TimeWindow = w
	}
	return o, nil
}

// Fixed-width UTC timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

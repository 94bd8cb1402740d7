package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/example/ridepool/internal/models"
)

var selectColumns = []string{
	ColID, ColPhone, ColName, ColLanguage,
	ColPickupLocation, ColPickupGeoData, ColPickupZip, ColPickupState,
	ColDestinationLocation, ColDestinationGeoData, ColDestinationZip, ColDestinationState,
	ColCreatedTimestamp, ColSearching, ColCompleted, ColExpired,
}

// PostgresStore backs rider sessions with a rider_sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Search(ctx context.Context, q Query) ([]models.RiderSession, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(selectColumns, ", ") + " FROM rider_sessions")

	args := make([]any, 0, len(q.Conditions))
	for i, c := range q.Conditions {
		if !validColumn(c.Column) {
			return nil, fmt.Errorf("store: unknown column %q", c.Column)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, c.Value)
		sb.WriteString(fmt.Sprintf("%s %s $%d", c.Column, sqlOperator(c.Op), len(args)))
	}
	if q.RowCount > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", q.RowCount, q.StartRow))
	}

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RiderSession, 0)
	for rows.Next() {
		var s models.RiderSession
		var created sql.NullTime
		err := rows.Scan(
			&s.ID, &s.Phone, &s.Name, &s.Language,
			&s.PickupLocation, &s.PickupGeoData, &s.PickupZip, &s.PickupState,
			&s.DestinationLocation, &s.DestinationGeoData, &s.DestinationZip, &s.DestinationState,
			&created, &s.Searching, &s.Completed, &s.Expired,
		)
		if err != nil {
			return nil, err
		}
		if created.Valid {
			s.CreatedTimestamp = created.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Insert(ctx context.Context, s *models.RiderSession) (string, error) {
	id := newID()
	var created sql.NullTime
	if !s.CreatedTimestamp.IsZero() {
		created = sql.NullTime{Time: s.CreatedTimestamp, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO rider_sessions(
		id, phone, name, language,
		pickup_location, pickup_geodata, pickup_zip, pickup_state,
		destination_location, destination_geodata, destination_zip, destination_state,
		created_timestamp, searching, completed, expired)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		id, s.Phone, s.Name, s.Language,
		s.PickupLocation, s.PickupGeoData, s.PickupZip, s.PickupState,
		s.DestinationLocation, s.DestinationGeoData, s.DestinationZip, s.DestinationState,
		created, s.Searching, s.Completed, s.Expired,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *PostgresStore) Update(ctx context.Context, id string, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	for column, v := range columns {
		if !validColumn(column) || column == ColID {
			return fmt.Errorf("store: unknown column %q", column)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE rider_sessions SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: no session with id %s", id)
	}
	return nil
}

func validColumn(column string) bool {
	for _, c := range selectColumns {
		if c == column {
			return true
		}
	}
	return false
}

func sqlOperator(op Op) string {
	if op == OpNeq {
		return "<>"
	}
	return "="
}

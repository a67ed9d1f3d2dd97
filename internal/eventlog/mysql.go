package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"clinic-queue/internal/models"
)

const recordTimeout = 2 * time.Second

const createTable = `
CREATE TABLE IF NOT EXISTS queue_events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	event VARCHAR(32) NOT NULL,
	ticket_number INT NULL,
	patient_id VARCHAR(64) NULL,
	detail VARCHAR(255) NULL,
	created_at DATETIME(3) NOT NULL,
	INDEX idx_queue_events_created_at (created_at)
)`

// MySQL stores events in the queue_events table.
type MySQL struct {
	db *sql.DB
}

func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

// Migrate creates the events table when missing.
func (m *MySQL) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("migrate queue_events: %w", err)
	}
	return nil
}

// Record inserts one event. Failures are logged and swallowed; the insert
// outlives the caller's cancellation but not recordTimeout.
func (m *MySQL) Record(ctx context.Context, event models.QueueEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	var ticket any
	if event.TicketNumber != nil {
		ticket = int64(*event.TicketNumber)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO queue_events (event, ticket_number, patient_id, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.Event, ticket, nullString(event.PatientID), nullString(event.Detail), createdAt,
	)
	if err != nil {
		log.Printf("[eventlog] record %s: %v", event.Event, err)
	}
}

// DailySummary counts events per type for the calendar day of day, in day's location.
func (m *MySQL) DailySummary(ctx context.Context, day time.Time) (models.DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := m.db.QueryContext(ctx,
		`SELECT event, COUNT(*) AS total FROM queue_events WHERE created_at >= ? AND created_at < ? GROUP BY event`,
		start, end,
	)
	if err != nil {
		return models.DailySummary{}, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	summary := models.DailySummary{
		Date:   start.Format("2006-01-02"),
		Counts: make(map[string]int),
	}
	for rows.Next() {
		var (
			name  string
			total int
		)
		if err := rows.Scan(&name, &total); err != nil {
			return models.DailySummary{}, fmt.Errorf("daily summary: %w", err)
		}
		summary.Counts[name] = total
		summary.Total += total
	}
	if err := rows.Err(); err != nil {
		return models.DailySummary{}, fmt.Errorf("daily summary: %w", err)
	}
	return summary, nil
}

// Recent returns the latest events, newest first.
func (m *MySQL) Recent(ctx context.Context, limit int) ([]models.QueueEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, event, ticket_number, patient_id, detail, created_at FROM queue_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	events := []models.QueueEvent{}
	for rows.Next() {
		var (
			e         models.QueueEvent
			ticket    sql.NullInt64
			patientID sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Event, &ticket, &patientID, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent events: %w", err)
		}
		if ticket.Valid {
			n := int(ticket.Int64)
			e.TicketNumber = &n
		}
		e.PatientID = patientID.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package db

import (
	"context"
	"fmt"
	"log"
)

const tripsDDL = `
CREATE TABLE IF NOT EXISTS trips (
	id CHAR(36) PRIMARY KEY,
	driver_id VARCHAR(64) NOT NULL,
	origin VARCHAR(255) NOT NULL,
	destination VARCHAR(255) NOT NULL,
	stops TEXT NULL,
	departure_at DATETIME NOT NULL,
	departure_date DATE NOT NULL,
	seats_total INT NOT NULL,
	seats_available INT NOT NULL,
	price_per_seat BIGINT NOT NULL,
	status VARCHAR(20) NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	KEY idx_trips_driver (driver_id),
	KEY idx_trips_departure_date (departure_date, status),
	CONSTRAINT chk_trips_seats CHECK (seats_available >= 0 AND seats_available <= seats_total)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const bookingsDDL = `
CREATE TABLE IF NOT EXISTS bookings (
	id CHAR(36) PRIMARY KEY,
	trip_id CHAR(36) NOT NULL,
	passenger_id VARCHAR(64) NOT NULL,
	driver_id VARCHAR(64) NOT NULL,
	seats_requested INT NOT NULL,
	total_price BIGINT NOT NULL,
	status VARCHAR(20) NOT NULL,
	rating TINYINT NULL,
	cancel_reason VARCHAR(32) NULL,
	refund_amount BIGINT NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	KEY idx_bookings_trip (trip_id),
	KEY idx_bookings_passenger (passenger_id),
	KEY idx_bookings_driver (driver_id),
	KEY idx_bookings_status_created (status, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

// EnsureSchema creates the trips and bookings tables when they are missing.
func EnsureSchema(ctx context.Context, q interface {
	QueryRower
	Execer
}) error {
	for _, t := range []struct {
		name string
		ddl  string
	}{
		{"trips", tripsDDL},
		{"bookings", bookingsDDL},
	} {
		if HasTable(ctx, q, t.name) {
			continue
		}
		if _, err := q.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		log.Printf("[DB] action=ensure_schema msg=created table %s", t.name)
	}

	// Columns added after the first release of the bookings table.
	for _, c := range []struct {
		column string
		ddl    string
	}{
		{"cancel_reason", `ALTER TABLE bookings ADD COLUMN cancel_reason VARCHAR(32) NULL`},
		{"refund_amount", `ALTER TABLE bookings ADD COLUMN refund_amount BIGINT NOT NULL DEFAULT 0`},
	} {
		if HasColumn(ctx, q, "bookings", c.column) {
			continue
		}
		if _, err := q.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("add column bookings.%s: %w", c.column, err)
		}
		log.Printf("[DB] action=ensure_schema msg=added column bookings.%s", c.column)
	}
	return nil
}

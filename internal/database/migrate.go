package database

import (
	"context"
	"database/sql"
)

// schema holds the DDL for the ticketing tables.  Statements are
// idempotent so Migrate can run on every startup.
//
// The tickets table carries the seat inventory invariant: `active` is
// 1 on a live ticket and NULL once soft-deleted, and the unique index
// uq_ticket_seat spans (concert_id, seat_grade_id, seat_number,
// active).  MySQL does not index NULLs for uniqueness, so any number
// of cancelled rows can share a seat while at most one live row can
// hold it.  idx_ticket_lookup serves point lookups and cancellation.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS concerts (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		concert_name   VARCHAR(255)    NOT NULL,
		performer      VARCHAR(255)    NOT NULL,
		show_start     DATETIME        NOT NULL,
		show_end       DATETIME        NOT NULL,
		ticketing_time DATETIME        NOT NULL,
		created_at     DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_concert_name_performer (concert_name, performer)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_grades (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		concert_id BIGINT UNSIGNED NOT NULL,
		grade      VARCHAR(64)     NOT NULL,
		price      BIGINT          NOT NULL,
		total_seat INT             NOT NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_seat_grade (concert_id, grade, price),
		CONSTRAINT fk_seat_grade_concert FOREIGN KEY (concert_id)
			REFERENCES concerts (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		concert_id    BIGINT UNSIGNED NOT NULL,
		seat_grade_id BIGINT UNSIGNED NOT NULL,
		buyer_name    VARCHAR(255)    NOT NULL,
		buyer_email   VARCHAR(255)    NOT NULL,
		seat_number   INT             NOT NULL,
		active        TINYINT         NULL DEFAULT 1,
		created_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at    DATETIME        NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_ticket_seat (concert_id, seat_grade_id, seat_number, active),
		KEY idx_ticket_lookup (concert_id, seat_grade_id, seat_number, buyer_email),
		CONSTRAINT fk_ticket_concert FOREIGN KEY (concert_id)
			REFERENCES concerts (id) ON DELETE CASCADE,
		CONSTRAINT fk_ticket_seat_grade FOREIGN KEY (seat_grade_id)
			REFERENCES seat_grades (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the ticketing tables if they do not exist yet.  It
// is called once at startup, right after the connection is verified.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

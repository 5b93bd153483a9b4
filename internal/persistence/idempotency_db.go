package persistence

import (
	"database/sql"
)

// PostgresIdempotencyChecker is the tier-2 dedup lookup against the record
// log. It implements core.DBIdempotencyChecker.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate checks whether a record with this type and request key was
// already persisted.
func (c *PostgresIdempotencyChecker) IsDuplicate(recordType string, requestKey string) (bool, error) {
	var exists bool
	err := c.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM record_log.records
			WHERE record_type = $1 AND request_key = $2
		)
	`, recordType, requestKey).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecentRequestKeys returns the newest composite keys ("Type:request_key")
// for LRU warming on restart.
func (c *PostgresIdempotencyChecker) RecentRequestKeys(limit int) ([]string, error) {
	rows, err := c.db.Query(`
		SELECT record_type || ':' || request_key
		FROM record_log.records
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

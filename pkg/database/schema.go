package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator inspects sqlite_master and table_info to confirm the
// ledger schema is what the queries expect.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"match_results":     "Match outcome ledger",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	columns := map[string]string{
		"id":           "TEXT",
		"room_id":      "TEXT",
		"winner":       "TEXT",
		"opponent":     "TEXT",
		"problem_slug": "TEXT",
		"topic":        "TEXT",
		"difficulty":   "TEXT",
		"reason":       "TEXT",
		"started_at":   "DATETIME",
		"ended_at":     "DATETIME",
	}

	if err := v.validateColumns("match_results", columns); err != nil {
		return fmt.Errorf("match_results table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that the indexes used by ledger queries exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_match_results_ended_at": "Recent match listing",
		"idx_match_results_room":     "Per-room lookups",
		"idx_match_results_winner":   "Per-player lookups",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, kind   string
			notNull, pk  int
			defaultValue interface{}
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = kind
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, kind := range expected {
		foundKind, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if foundKind != kind {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundKind, kind)
		}
	}
	return nil
}

package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"tests":             "Proctored test records",
		"activity_logs":     "Per-student inactivity events",
		"face_descriptors":  "Registered face descriptors",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	testColumns := map[string]string{
		"id":               "TEXT",
		"title":            "TEXT",
		"invite_code":      "TEXT",
		"start_time":       "DATETIME",
		"duration_minutes": "INTEGER",
		"invited_emails":   "TEXT",
		"attended_emails":  "TEXT",
		"created_at":       "DATETIME",
	}
	if err := v.validateColumns("tests", testColumns); err != nil {
		return fmt.Errorf("tests table structure invalid: %w", err)
	}

	activityColumns := map[string]string{
		"id":          "INTEGER",
		"test_id":     "TEXT",
		"email":       "TEXT",
		"name":        "TEXT",
		"message":     "TEXT",
		"occurred_at": "DATETIME",
	}
	if err := v.validateColumns("activity_logs", activityColumns); err != nil {
		return fmt.Errorf("activity_logs table structure invalid: %w", err)
	}

	descriptorColumns := map[string]string{
		"email":      "TEXT",
		"descriptor": "TEXT",
		"updated_at": "DATETIME",
	}
	if err := v.validateColumns("face_descriptors", descriptorColumns); err != nil {
		return fmt.Errorf("face_descriptors table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_tests_invite_code":   "Invite code validation lookups",
		"idx_activity_test_email": "Per-student activity queries",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			// Ignore cleanup errors to avoid masking the primary error
			_ = err
		}
	}()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = strings.ToUpper(colType)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expectedColumns {
		foundType, exists := foundColumns[column]
		if !exists {
			return fmt.Errorf("column %s does not exist", column)
		}
		if foundType != strings.ToUpper(expectedType) {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundType, expectedType)
		}
	}

	return nil
}

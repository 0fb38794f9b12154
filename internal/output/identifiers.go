// internal/output/identifiers.go
package output

import (
	"fmt"
	"regexp"
	"strings"
)

// Identifier length limits per dialect.
const (
	MaxPostgreSQLIdentifierLength = 63
	MaxMySQLIdentifierLength      = 64
	MaxSQLiteIdentifierLength     = 998
)

// SQL identifier regex: starts with letter or underscore, contains letters, digits, underscores
var sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedWords holds keywords reserved in at least one supported dialect
// that are plausible table names.
var reservedWords = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "BY": true, "CHECK": true, "COLUMN": true,
	"CONSTRAINT": true, "CREATE": true, "DEFAULT": true, "DELETE": true, "DESC": true,
	"DISTINCT": true, "DROP": true, "FROM": true, "GROUP": true, "INDEX": true,
	"INSERT": true, "INTO": true, "JOIN": true, "KEY": true, "LIMIT": true, "NOT": true,
	"NULL": true, "ON": true, "OR": true, "ORDER": true, "PRIMARY": true, "REFERENCES": true,
	"SELECT": true, "SET": true, "TABLE": true, "TO": true, "UNION": true, "UNIQUE": true,
	"UPDATE": true, "USER": true, "VALUES": true, "WHERE": true, "WITH": true,
}

// ValidateSQLIdentifier checks that identifier is safe to splice into DDL for dialect.
func ValidateSQLIdentifier(identifier, dialect string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	limit := MaxPostgreSQLIdentifierLength
	switch dialect {
	case "sqlite":
		limit = MaxSQLiteIdentifierLength
	case "mysql":
		limit = MaxMySQLIdentifierLength
	}
	if len(identifier) > limit {
		return fmt.Errorf("identifier too long (max %d characters): %s", limit, identifier)
	}

	if !sqlIdentifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid identifier format: %s", identifier)
	}

	if reservedWords[strings.ToUpper(identifier)] {
		return fmt.Errorf("identifier is a reserved SQL keyword: %s", identifier)
	}
	return nil
}

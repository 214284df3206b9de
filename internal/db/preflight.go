package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Preflight verifies every extension in required is installed, attempting to
// create it if the connected role has the privilege to do so. A missing,
// uncreatable extension is a fatal startup error per the "Configuration
// options" section: the message lists the exact CREATE EXTENSION statements
// an operator needs to run.
func Preflight(db *sql.DB, required []string) error {
	var missing []string

	for _, ext := range required {
		var installed bool
		err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)`, ext).Scan(&installed)
		if err != nil {
			return fmt.Errorf("preflight: checking extension %s: %w", ext, err)
		}
		if installed {
			continue
		}

		if _, err := db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", pqIdent(ext))); err != nil {
			missing = append(missing, ext)
			continue
		}
	}

	if len(missing) == 0 {
		return nil
	}

	var stmts []string
	for _, ext := range missing {
		stmts = append(stmts, fmt.Sprintf("CREATE EXTENSION %s;", pqIdent(ext)))
	}
	return fmt.Errorf(
		"preflight: missing required extensions %s; connect as a superuser (or a role with CREATE privileges) and run:\n%s",
		strings.Join(missing, ", "), strings.Join(stmts, "\n"),
	)
}

// pqIdent strips double quotes from the handful of fixed extension names
// this package ever passes through Exec; it adds no quoting and is not a
// general purpose SQL identifier escaper.
func pqIdent(name string) string {
	return strings.ReplaceAll(name, `"`, "")
}

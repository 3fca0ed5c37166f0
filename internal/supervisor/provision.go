package supervisor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgden/pgden/internal/instance"
)

// provisionRoles makes the instance's application role and database exist.
// The cluster superuser is always postgres; a different requested username
// becomes an additional superuser role carrying the instance password.
// Every statement is a no-op when its object already exists, so this runs
// on each start.
func provisionRoles(ctx context.Context, inst *instance.Instance) error {
	db, err := sql.Open("postgres", superuserDSN(inst.Port, inst.Password))
	if err != nil {
		return fmt.Errorf("connect for provisioning: %w", err)
	}
	defer db.Close()

	if inst.Username != "" && inst.Username != "postgres" {
		stmt := fmt.Sprintf(
			"DO $$ BEGIN IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = %s) THEN CREATE USER %s WITH SUPERUSER PASSWORD %s; END IF; END $$;",
			pq.QuoteLiteral(inst.Username),
			pq.QuoteIdentifier(inst.Username),
			pq.QuoteLiteral(inst.Password),
		)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create role %q: %w", inst.Username, err)
		}
	}

	if inst.Database != "" && inst.Database != "postgres" {
		stmt := "CREATE DATABASE " + pq.QuoteIdentifier(inst.Database)
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateDatabase(err) {
			return fmt.Errorf("create database %q: %w", inst.Database, err)
		}
		if inst.Username != "" && inst.Username != "postgres" {
			grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s",
				pq.QuoteIdentifier(inst.Database), pq.QuoteIdentifier(inst.Username))
			if _, err := db.ExecContext(ctx, grant); err != nil {
				return fmt.Errorf("grant on %q: %w", inst.Database, err)
			}
		}
	}
	return nil
}

// isDuplicateDatabase matches SQLSTATE 42P04. CREATE DATABASE cannot run
// inside a transaction, so it cannot use the IF NOT EXISTS DO-block trick
// the role creation uses.
func isDuplicateDatabase(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P04"
}

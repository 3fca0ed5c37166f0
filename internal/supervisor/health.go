package supervisor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// superuserDSN builds a connection string for the cluster superuser against
// the maintenance database.
func superuserDSN(port int, password string) string {
	return fmt.Sprintf(
		"host=127.0.0.1 port=%d user=postgres password=%s dbname=postgres sslmode=disable connect_timeout=1",
		port, quoteDSN(password))
}

// quoteDSN quotes a keyword/value connection string value so passwords with
// spaces or quotes survive.
func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// probeSQL makes one authenticated round trip as the cluster superuser.
// Reaching the maintenance database proves the engine accepts connections,
// not merely that something listens on the port.
func probeSQL(ctx context.Context, port int, password string) error {
	db, err := sql.Open("postgres", superuserDSN(port, password))
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

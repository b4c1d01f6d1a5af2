package tools

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqlDriverNames maps the driver name a ToolSpec/DBStrategyRegistry uses
// to the database/sql driver registered by each side-effect import above.
var sqlDriverNames = map[string]string{
	"postgresql": "pgx",
	"postgres":   "pgx",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
}

// OpenSQLPool opens and verifies a connection pool for one of the
// relational drivers SQLStrategy supports ("postgresql"/"postgres",
// "mysql", "sqlite"), sized and pinged the way the teacher's
// NewDatabaseSessionStorage opens its own session store pool.
func OpenSQLPool(ctx context.Context, driver, connectionString string, maxOpenConns int) (*sql.DB, error) {
	sqlDriver, ok := sqlDriverNames[driver]
	if !ok {
		return nil, fmt.Errorf("toolrun: unsupported sql driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, connectionString)
	if err != nil {
		return nil, fmt.Errorf("toolrun: open %s pool: %w", driver, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("toolrun: ping %s pool: %w", driver, err)
	}
	return db, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/seokjunHwang/Quant/pkg/db"
)

// verify_schema applies migrations to DB_PATH (or the first argument) and
// reports the tables and columns the auto-trader depends on.
//
//	go run ./scripts/verify_schema ./data/autotrader.db
func main() {
	path := os.Getenv("DB_PATH")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		path = "./data/autotrader.db"
	}
	fmt.Printf("Verifying database at: %s\n", path)

	database, err := db.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		os.Exit(1)
	}

	missing := 0
	for _, table := range []string{"signals", "trades", "positions", "failed_orders", "manual_closes"} {
		var name string
		err := database.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			fmt.Printf("MISSING table %s\n", table)
			missing++
			continue
		}
		var rows int
		_ = database.DB.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&rows)
		fmt.Printf("ok      table %-14s rows=%d\n", table, rows)
	}

	var n int
	if err := database.DB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('signals') WHERE name='consumed_at'`).Scan(&n); err != nil || n == 0 {
		fmt.Println("MISSING column signals.consumed_at")
		missing++
	} else {
		fmt.Println("ok      column signals.consumed_at")
	}

	if missing > 0 {
		os.Exit(1)
	}
}

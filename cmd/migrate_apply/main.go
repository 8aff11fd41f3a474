package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tablegames/internal/db"
	"tablegames/internal/logger"
	"tablegames/internal/migrations"
)

func main() {
	logger.Init("info", false)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	apply := flag.Bool("apply", false, "apply pending migrations")
	flag.Parse()

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx := context.Background()
	if !*apply {
		pending, err := db.Pending(ctx, pool, migrations.FS)
		if err != nil {
			logger.Fatal("list migrations", "error", err)
		}
		for _, name := range pending {
			fmt.Println(name)
		}
		return
	}

	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		logger.Fatal("migrate", "error", err)
	}
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
}

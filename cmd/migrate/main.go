package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"team-presence/database"
)

func main() {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	dbURL := flags.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (default $DATABASE_URL)")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [--database-url URL] <up|down|status|version|redo|reset|up-to N|down-to N>")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatal(err)
	}
	if *dbURL == "" {
		log.Fatal("DATABASE_URL environment variable or --database-url is required")
	}

	command := "up"
	var args []string
	if rest := flags.Args(); len(rest) > 0 {
		command, args = rest[0], rest[1:]
	}

	db, err := database.Connect(*dbURL, database.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Running migrate %s", command)
	if err := database.RunMigrations(context.Background(), db, command, args...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migration completed successfully")
}

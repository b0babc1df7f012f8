// Command dbcheck prints the latest users and outbox rows. With -fix it puts
// events stuck in processing back to new; with -correlation it lists the
// outbox events of one request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fushimori/lakomka/internal/config"
	"github.com/fushimori/lakomka/internal/infrastructure/postgres"
)

func main() {
	fix := flag.Bool("fix", false, "reset processing outbox events to new")
	correlationID := flag.String("correlation", "", "list outbox events with this correlation id")
	limit := flag.Int("limit", 5, "rows to show per table")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewClient(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *fix {
		tag, err := pool.Exec(ctx, "UPDATE outbox SET status = 'new', updated_at = NOW() WHERE status = 'processing'")
		if err != nil {
			fmt.Printf("Fix failed: %v\n", err)
		} else {
			fmt.Printf("Fixed %d messages\n", tag.RowsAffected())
		}
	}

	if *correlationID != "" {
		events, err := postgres.NewOutboxRepository(pool).ListByCorrelationID(ctx, *correlationID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lookup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("--- Outbox events for %s ---\n", *correlationID)
		for _, e := range events {
			fmt.Printf("ID: %s | Status: %s | Type: %s | Payload: %s\n", e.ID, e.Status, e.EventType, e.Payload)
		}
		return
	}

	fmt.Println("--- Users ---")
	rows, err := pool.Query(ctx, "SELECT id, email, role, is_active, created_at FROM users ORDER BY created_at DESC LIMIT $1", *limit)
	if err == nil {
		for rows.Next() {
			var (
				id        int64
				email     string
				role      string
				active    bool
				createdAt time.Time
			)
			if err := rows.Scan(&id, &email, &role, &active, &createdAt); err != nil {
				fmt.Printf("scan: %v\n", err)
				break
			}
			fmt.Printf("ID: %d | Email: %s | Role: %s | Active: %t | Created: %s\n", id, email, role, active, createdAt.Format(time.RFC3339))
		}
		rows.Close()
	} else {
		fmt.Printf("query users: %v\n", err)
	}

	fmt.Println("\n--- Outbox ---")
	rows, err = pool.Query(ctx, "SELECT id, status, event_type FROM outbox ORDER BY created_at DESC LIMIT $1", *limit)
	if err != nil {
		fmt.Printf("query outbox: %v\n", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id, status, eventType string
		if err := rows.Scan(&id, &status, &eventType); err != nil {
			fmt.Printf("scan: %v\n", err)
			return
		}
		fmt.Printf("ID: %s | Status: %s | Type: %s\n", id, status, eventType)
	}
}

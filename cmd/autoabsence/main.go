// Command autoabsence runs the auto-absence batch once and exits. Schedule
// it from cron every few minutes during school hours.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lamms/attendance_backend/internal/config"
	"github.com/lamms/attendance_backend/internal/database"
	"github.com/lamms/attendance_backend/internal/routes"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 when every session was handled,
// 1 when any lookup, write or session failed.
func run() int {
	at := flag.String("at", "", "evaluate as of this RFC 3339 time instead of now")
	dryRun := flag.Bool("dry-run", false, "list the sessions that would be closed without changing them")
	timeout := flag.Duration("timeout", 5*time.Minute, "give up after this long")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Printf("database connection failed: %v", err)
		return 1
	}
	svc := routes.NewService(db, cfg, nil)

	now := svc.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Printf("invalid -at: %v", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	code := 0
	if *dryRun {
		for cand, err := range svc.SchedulesNeedingAutoAbsence(ctx, now) {
			if err != nil {
				log.Printf("[AUTO-ABSENCE] session=%s lookup failed: %v", cand.Session.ID, err)
				code = 1
				continue
			}
			if err := enc.Encode(cand); err != nil {
				log.Printf("write candidate %s: %v", cand.Session.ID, err)
				return 1
			}
		}
		return code
	}

	results := svc.ProcessAutoAbsence(ctx, now)
	if err := enc.Encode(results); err != nil {
		log.Printf("write manifest: %v", err)
		return 1
	}
	for _, r := range results {
		if r.Error != "" {
			code = 1
		}
	}
	return code
}

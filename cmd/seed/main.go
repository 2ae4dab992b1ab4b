// Command seed fills the database with demo users, messages, follows and likes.
package main

import (
	"context"
	"flag"
	"log"

	"warbler/internal/config"
	"warbler/internal/database"
	"warbler/internal/middleware"
	"warbler/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numMessages := flag.Int("messages", 300, "Number of messages to create")
	numFollows := flag.Int("follows", 200, "Number of follow edges to create")
	numLikes := flag.Int("likes", 400, "Number of likes to create")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.SetupLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	summary, err := seed.Seed(context.Background(), db, seed.Options{
		Users:    *numUsers,
		Messages: *numMessages,
		Follows:  *numFollows,
		Likes:    *numLikes,
		Clean:    *shouldClean,
		DryRun:   *dryRun,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d messages, %d follows, %d likes", summary.Users, summary.Messages, summary.Follows, summary.Likes)
	log.Printf("All demo users have the password: %s", seed.DemoPassword)
}

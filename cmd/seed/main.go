package main

import (
	"log"
	"os"

	"crewtalk-be/internal/model"
	"crewtalk-be/pkg/database"

	"github.com/joho/godotenv"
	"gorm.io/datatypes"
)

func main() {
	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding Demo Session...")

	session := model.Session{
		Title:            "Checkout Conversion Workshop",
		ProblemStatement: "Mobile checkout conversion dropped 18% after the last redesign. Find out why and propose fixes.",
		Strategy:         "double_diamond",
		TimeLimitSec:     1200,
		PhaseWeights:     datatypes.JSONMap{"discover": 0.3, "define": 0.2, "develop": 0.3, "deliver": 0.2},
		Phase:            "discover",
		Status:           "idle",
	}

	var existing model.Session
	if err := db.Where("title = ?", session.Title).First(&existing).Error; err == nil {
		log.Printf("Session '%s' already exists, skipping...", session.Title)
		return
	}

	if err := db.Create(&session).Error; err != nil {
		log.Fatalf("Error creating session: %v", err)
	}
	log.Printf("Created session: %s (%s)", session.Title, session.Id)

	agents := []model.Agent{
		{SessionId: session.Id, Name: "Mia", Role: "moderator", Trait: "Keeps the group on schedule and summarizes decisions.", IsActive: true},
		{SessionId: session.Id, Name: "Ana", Role: "participant", Trait: "UX researcher, skeptical of untested assumptions.", IsActive: true},
		{SessionId: session.Id, Name: "Ben", Role: "participant", Trait: "Backend engineer, pushes for measurable hypotheses.", IsActive: true},
		{SessionId: session.Id, Name: "Nora", Role: "notetaker", Trait: "Captures action items and open questions.", IsActive: true},
	}

	for _, a := range agents {
		if err := db.Create(&a).Error; err != nil {
			log.Printf("Error creating agent '%s': %v", a.Name, err)
		} else {
			log.Printf("Created agent: %s (%s)", a.Name, a.Role)
		}
	}

	log.Println("Demo seeding completed!")
}

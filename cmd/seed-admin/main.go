package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/triutilizer/backend/internal/admin"
	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Seed admin account
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin" // Default username
		log.Printf("Using default admin username: %s", username)
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = "change-me-in-production" // Default token
		log.Printf("WARNING: Using default admin token. Set ADMIN_TOKEN env var in production!")
	}

	roles := []string{"super_admin"}
	allowedIPs := []string{} // Empty = allow from any IP

	err = admin.CreateAdminAccount(db, username, adminToken, roles, allowedIPs)
	if err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}

	log.Printf("✓ Admin account created/updated successfully")
	log.Printf("  Username: %s", username)
	log.Printf("  Roles: %v", roles)
	log.Println("\nYou can now login at /api/v1/auth/login with:")
	log.Printf("  Username: %s", username)
	log.Printf("  Token: %s", adminToken)
}

package admin

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/triutilizer/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// GetAdminAccount retrieves an admin account by username
func GetAdminAccount(db *sqlx.DB, username string) (*models.AdminAccount, error) {
	var admin models.AdminAccount
	err := db.Get(&admin, `SELECT id, username, token_hash, roles, allowed_ips, created_at, last_login FROM admin_accounts WHERE username=$1`, username)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// VerifyAdminToken checks if the provided token matches the stored hash
func VerifyAdminToken(hashedToken, plainToken string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedToken), []byte(plainToken))
	return err == nil
}

// CreateAdminAccount creates a new admin account (used for seeding/testing)
func CreateAdminAccount(db *sqlx.DB, username, plainToken string, roles, allowedIPs []string) error {
	hashedToken, err := bcrypt.GenerateFromPassword([]byte(plainToken), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO admin_accounts (username, token_hash, roles, allowed_ips, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (username) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			roles = EXCLUDED.roles,
			allowed_ips = EXCLUDED.allowed_ips
	`, username, string(hashedToken), pq.Array(roles), pq.Array(allowedIPs))

	return err
}

// TouchAdminLogin stamps the account's last successful login
func TouchAdminLogin(db *sqlx.DB, username string) {
	if _, err := db.Exec(`UPDATE admin_accounts SET last_login=NOW() WHERE username=$1`, username); err != nil {
		log.Printf("[ADMIN] Failed to update last_login for %s: %v", username, err)
	}
}

// LogAdminAction records an admin action in the audit log
func LogAdminAction(db *sqlx.DB, adminUsername, ip, route, action string, details map[string]interface{}, success bool) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		log.Printf("Failed to marshal admin audit details: %v", err)
		detailsJSON = []byte("{}")
	}

	_, err = db.Exec(`
		INSERT INTO admin_audit (admin_username, ip, route, action, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, adminUsername, ip, route, action, detailsJSON, success)

	if err != nil {
		log.Printf("Failed to log admin action: %v", err)
	}

	return err
}

// GetAdminAuditLogs retrieves recent admin audit logs with pagination
func GetAdminAuditLogs(db *sqlx.DB, limit, offset int) ([]models.AdminAudit, error) {
	var logs []models.AdminAudit
	query := `
		SELECT id, admin_username, ip, route, action, details, success, created_at
		FROM admin_audit
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	err := db.Select(&logs, query, limit, offset)
	return logs, err
}

// GetAdminAuditLogsByUsername retrieves audit logs for a specific admin
func GetAdminAuditLogsByUsername(db *sqlx.DB, username string, limit, offset int) ([]models.AdminAudit, error) {
	var logs []models.AdminAudit
	query := `
		SELECT id, admin_username, ip, route, action, details, success, created_at
		FROM admin_audit
		WHERE admin_username = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.Select(&logs, query, username, limit, offset)
	return logs, err
}

// ValidateAdminCredentials validates username + token combination
func ValidateAdminCredentials(db *sqlx.DB, username, token string) (*models.AdminAccount, error) {
	admin, err := GetAdminAccount(db, username)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[ADMIN] No admin account found for username: %s", username)
			return nil, fmt.Errorf("admin account not found")
		}
		log.Printf("[ADMIN] Database error: %v", err)
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !VerifyAdminToken(admin.TokenHash, token) {
		log.Printf("[ADMIN] Token verification failed for username: %s", username)
		return nil, fmt.Errorf("invalid token")
	}

	TouchAdminLogin(db, username)
	return admin, nil
}

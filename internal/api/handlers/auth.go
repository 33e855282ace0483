package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"github.com/triutilizer/backend/internal/admin"
	"github.com/triutilizer/backend/internal/config"
)

const adminTokenTTL = 24 * time.Hour

// Login validates admin credentials and issues a bearer JWT
func Login(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Token    string `json:"token" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and token required"})
			return
		}

		username := strings.TrimSpace(req.Username)

		adminAcc, err := admin.ValidateAdminCredentials(db, username, req.Token)
		if err != nil {
			log.Printf("[ADMIN] Login failed for username %s: %v", username, err)
			admin.LogAdminAction(db, username, c.ClientIP(), "/api/v1/auth/login", "login", map[string]interface{}{"username": username}, false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		if len(adminAcc.AllowedIPs) > 0 {
			allowed := false
			for _, ip := range adminAcc.AllowedIPs {
				if ip == c.ClientIP() {
					allowed = true
					break
				}
			}
			if !allowed {
				log.Printf("[ADMIN] Login from disallowed IP %s for %s", c.ClientIP(), username)
				admin.LogAdminAction(db, username, c.ClientIP(), "/api/v1/auth/login", "login_ip_rejected", map[string]interface{}{"ip": c.ClientIP()}, false)
				c.JSON(http.StatusForbidden, gin.H{"error": "IP not allowed"})
				return
			}
		}

		exp := time.Now().Add(adminTokenTTL)
		claims := jwt.MapClaims{
			"username": adminAcc.Username,
			"roles":    []string(adminAcc.Roles),
			"exp":      exp.Unix(),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			log.Printf("Failed to sign token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		admin.LogAdminAction(db, username, c.ClientIP(), "/api/v1/auth/login", "login", map[string]interface{}{"username": username}, true)
		c.JSON(http.StatusOK, gin.H{
			"token":      signed,
			"expires_at": exp.Format(time.RFC3339),
			"admin": gin.H{
				"username": adminAcc.Username,
				"roles":    []string(adminAcc.Roles),
			},
		})
	}
}

// AuthMiddleware validates bearer JWT and sets admin_username in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		username, ok := claims["username"].(string)
		if !ok || username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("admin_username", username)
		c.Next()
	}
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "admin_session"

// generateSessionJWT issues a short-lived admin session token.
func generateSessionJWT(secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(ttl).Unix(),
		"iss":  "casguard-admin",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateSessionJWT checks signature, expiry and the admin role claim.
func validateSessionJWT(secret, tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	return ok && claims["role"] == "admin"
}

// Login exchanges the admin token for a session JWT, set both as a cookie
// and returned in the body.
func (h *Handler) Login(c *gin.Context) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token required"})
		return
	}
	if h.Cfg.AdminToken == "" || body.Token != h.Cfg.AdminToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	session, err := generateSessionJWT(h.Cfg.AdminSessionSecret, h.Cfg.AdminSessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.SetCookie(sessionCookie, session, int(h.Cfg.AdminSessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// AuthMiddleware accepts either the static admin token or a session JWT,
// via the Authorization header or the session cookie.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.authorized(c) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid credentials"})
	}
}

func (h *Handler) authorized(c *gin.Context) bool {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		bearer := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if h.Cfg.AdminToken != "" && bearer == h.Cfg.AdminToken {
			return true
		}
		if validateSessionJWT(h.Cfg.AdminSessionSecret, bearer) {
			return true
		}
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return validateSessionJWT(h.Cfg.AdminSessionSecret, cookie)
	}
	return false
}

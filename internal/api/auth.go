package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	operatorKey  = "operator"
	operatorName = "admin"
	sessionTTL   = 72 * time.Hour
)

var errBadClaims = errors.New("token carries no operator")

// sessionClaims is the JWT body issued to the operator.
type sessionClaims struct {
	Operator string `json:"op"`
	jwt.RegisteredClaims
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// operatorAuth signs and checks sessions for the single operator account.
type operatorAuth struct {
	secret []byte
	hash   []byte
	now    func() time.Time
}

func newOperatorAuth(a Auth) *operatorAuth {
	return &operatorAuth{secret: []byte(a.JWTSecret), hash: []byte(a.AdminPasswordHash), now: time.Now}
}

func (o *operatorAuth) enabled() bool { return len(o.hash) > 0 }

func (o *operatorAuth) verifyPassword(user, password string) bool {
	if user != operatorName {
		return false
	}
	return bcrypt.CompareHashAndPassword(o.hash, []byte(password)) == nil
}

func (o *operatorAuth) issue(user string) (string, time.Time, error) {
	now := o.now()
	exp := now.Add(sessionTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Operator: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(o.secret)
	return signed, exp, err
}

func (o *operatorAuth) verify(raw string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return o.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Operator == "" {
		return "", errBadClaims
	}
	return claims.Operator, nil
}

// bearer extracts the token from "Authorization: Bearer <token>".
func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// require rejects requests without a valid operator session.
func (o *operatorAuth) require() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respondAbort(c, http.StatusUnauthorized, "MISSING_TOKEN", "missing Authorization header")
			return
		}
		raw, ok := bearer(header)
		if !ok {
			respondAbort(c, http.StatusUnauthorized, "INVALID_AUTH_HEADER", "invalid Authorization header")
			return
		}
		user, err := o.verify(raw)
		if err != nil {
			respondAbort(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		c.Set(operatorKey, user)
		c.Next()
	}
}

func respondAbort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": msg})
}

// CurrentOperator returns the authenticated operator, empty outside protected routes.
func CurrentOperator(c *gin.Context) string {
	return c.GetString(operatorKey)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	if !s.auth.enabled() {
		respondError(c, http.StatusServiceUnavailable, "LOGIN_DISABLED", "ADMIN_PASSWORD_HASH is not configured")
		return
	}
	if req.Password == "" {
		respondError(c, http.StatusBadRequest, "MISSING_CREDENTIALS", "password is required")
		return
	}
	user := strings.TrimSpace(req.Username)
	if user == "" {
		user = operatorName
	}
	if !s.auth.verifyPassword(user, req.Password) {
		s.log.Warn().Str("username", user).Str("ip", c.ClientIP()).Msg("login rejected")
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}

	token, exp, err := s.auth.issue(user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
		"user_id":    user,
	})
}

package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/luchaneitor/tecnoacceso-web/internal/server/crypto"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

type AuthHandler struct {
	db         *sql.DB
	jwtManager *crypto.JWTManager
}

func NewAuthHandler(db *sql.DB, jwtManager *crypto.JWTManager) *AuthHandler {
	return &AuthHandler{db: db, jwtManager: jwtManager}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PostLogin verifies operator credentials and issues a bearer token.
// POST /v1/auth/login
func (h *AuthHandler) PostLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var (
		profile OperatorProfile
		hash    string
	)
	err := h.db.QueryRowContext(c.Request.Context(),
		"SELECT id, username, password_hash, display_name, role, dependency FROM operators WHERE username = ?",
		req.Username,
	).Scan(&profile.ID, &profile.Username, &hash, &profile.DisplayName, &profile.Role, &profile.Dependency)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}
	if err != nil {
		logger.Errorf("PostLogin: operator lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	token, err := h.jwtManager.CreateToken(profile.ID, profile.Username, profile.Role)
	if err != nil {
		logger.Errorf("PostLogin: CreateToken failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Operator: profile})
}

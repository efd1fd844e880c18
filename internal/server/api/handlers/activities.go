package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/api/middleware"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// activityFeedLimit caps how many activities a list request returns.
const activityFeedLimit = 50

type ActivityHandler struct {
	db *sql.DB
}

func NewActivityHandler(db *sql.DB) *ActivityHandler {
	return &ActivityHandler{db: db}
}

// PostActivity mirrors one client-side activity record. Record ids are
// client-generated, so a retried append is a no-op.
// POST /v1/activities
func (h *ActivityHandler) PostActivity(c *gin.Context) {
	var a records.Activity
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: err.Error()})
		return
	}
	if a.Action == "" {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: "missing action"})
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if a.Operator == "" {
		a.Operator, _ = middleware.GetUsername(c)
	}

	_, err := h.db.ExecContext(c.Request.Context(),
		"INSERT OR IGNORE INTO activities (id, operator_username, dependency, action, command, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.Operator, a.Dependency, a.Action, a.Command, a.Timestamp.UnixMilli(),
	)
	if err != nil {
		logger.Errorf("PostActivity: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, AppendResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, AppendResponse{Success: true, ID: a.ID})
}

// GetActivities returns the newest activities with operator display names
// joined in. Admin only.
// GET /v1/activities
func (h *ActivityHandler) GetActivities(c *gin.Context) {
	if role, _ := middleware.GetRole(c); role != "admin" {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin role required"})
		return
	}

	rows, err := h.db.QueryContext(c.Request.Context(), `
		SELECT a.id, a.operator_username, COALESCE(o.display_name, ''), a.dependency, a.action, a.command, a.created_at_ms
		FROM activities a
		LEFT JOIN operators o ON o.username = a.operator_username
		ORDER BY a.created_at_ms DESC
		LIMIT ?`, activityFeedLimit)
	if err != nil {
		logger.Errorf("GetActivities: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}
	defer rows.Close()

	out := make([]records.Activity, 0, activityFeedLimit)
	for rows.Next() {
		var (
			a  records.Activity
			ms int64
		)
		if err := rows.Scan(&a.ID, &a.Operator, &a.OperatorName, &a.Dependency, &a.Action, &a.Command, &ms); err != nil {
			logger.Errorf("GetActivities: scan failed: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
			return
		}
		a.Timestamp = time.UnixMilli(ms)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		logger.Errorf("GetActivities: rows failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, out)
}

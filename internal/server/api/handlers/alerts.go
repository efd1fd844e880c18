package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// unreadAlertLimit caps how many unread alerts a list request returns.
const unreadAlertLimit = 10

type AlertHandler struct {
	db *sql.DB
}

func NewAlertHandler(db *sql.DB) *AlertHandler {
	return &AlertHandler{db: db}
}

// PostAlert mirrors one client-side alert. An empty message is rejected.
// POST /v1/alerts
func (h *AlertHandler) PostAlert(c *gin.Context) {
	var a records.Alert
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(a.Message) == "" {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: "alert message must not be empty"})
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if a.Kind == "" {
		a.Kind = records.AlertInfo
	}
	if a.Priority == "" {
		a.Priority = records.PriorityMedium
	}

	read := 0
	if a.Read {
		read = 1
	}
	_, err := h.db.ExecContext(c.Request.Context(),
		"INSERT OR IGNORE INTO alerts (id, message, kind, priority, operator_username, read, created_at_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Message, a.Kind, a.Priority, a.Operator, read, a.Timestamp.UnixMilli(),
	)
	if err != nil {
		logger.Errorf("PostAlert: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, AppendResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, AppendResponse{Success: true, ID: a.ID})
}

// GetUnreadAlerts returns the newest unread alerts.
// GET /v1/alerts
func (h *AlertHandler) GetUnreadAlerts(c *gin.Context) {
	rows, err := h.db.QueryContext(c.Request.Context(), `
		SELECT a.id, a.message, a.kind, a.priority, a.operator_username, COALESCE(o.display_name, ''), a.created_at_ms
		FROM alerts a
		LEFT JOIN operators o ON o.username = a.operator_username
		WHERE a.read = 0
		ORDER BY a.created_at_ms DESC
		LIMIT ?`, unreadAlertLimit)
	if err != nil {
		logger.Errorf("GetUnreadAlerts: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}
	defer rows.Close()

	out := make([]records.Alert, 0, unreadAlertLimit)
	for rows.Next() {
		var (
			a  records.Alert
			ms int64
		)
		if err := rows.Scan(&a.ID, &a.Message, &a.Kind, &a.Priority, &a.Operator, &a.OperatorName, &ms); err != nil {
			logger.Errorf("GetUnreadAlerts: scan failed: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
			return
		}
		a.Timestamp = time.UnixMilli(ms)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		logger.Errorf("GetUnreadAlerts: rows failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, out)
}

// PostAlertRead marks one alert as read. Acks for alerts that were never
// mirrored succeed silently; the transition is one-way either way.
// POST /v1/alerts/:id/read
func (h *AlertHandler) PostAlertRead(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: "missing alert id"})
		return
	}

	_, err := h.db.ExecContext(c.Request.Context(), "UPDATE alerts SET read = 1 WHERE id = ?", id)
	if err != nil {
		logger.Errorf("PostAlertRead: update failed: %v", err)
		c.JSON(http.StatusInternalServerError, AppendResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, AppendResponse{Success: true, ID: id})
}

package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/api/middleware"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

const logFeedLimit = 50

type LogHandler struct {
	db *sql.DB
}

func NewLogHandler(db *sql.DB) *LogHandler {
	return &LogHandler{db: db}
}

// PostLog mirrors one client-side log entry.
// POST /v1/logs
func (h *LogHandler) PostLog(c *gin.Context) {
	var l records.Log
	if err := c.ShouldBindJSON(&l); err != nil {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: err.Error()})
		return
	}
	if l.Action == "" {
		c.JSON(http.StatusBadRequest, AppendResponse{Error: "missing action"})
		return
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}

	var detail any
	if len(l.Detail) > 0 {
		detail = string(l.Detail)
	}
	_, err := h.db.ExecContext(c.Request.Context(),
		"INSERT OR IGNORE INTO logs (id, action, category, detail, operator_username, outcome, created_at_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.Action, l.Category, detail, l.Operator, l.Outcome, l.Timestamp.UnixMilli(),
	)
	if err != nil {
		logger.Errorf("PostLog: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, AppendResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, AppendResponse{Success: true, ID: l.ID})
}

// GetLogs returns the newest log entries. Admin only.
// GET /v1/logs
func (h *LogHandler) GetLogs(c *gin.Context) {
	if role, _ := middleware.GetRole(c); role != "admin" {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin role required"})
		return
	}

	rows, err := h.db.QueryContext(c.Request.Context(), `
		SELECT l.id, l.action, l.category, l.detail, l.operator_username, COALESCE(o.display_name, ''), l.outcome, l.created_at_ms
		FROM logs l
		LEFT JOIN operators o ON o.username = l.operator_username
		ORDER BY l.created_at_ms DESC
		LIMIT ?`, logFeedLimit)
	if err != nil {
		logger.Errorf("GetLogs: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}
	defer rows.Close()

	out := make([]records.Log, 0, logFeedLimit)
	for rows.Next() {
		var (
			l      records.Log
			detail sql.NullString
			ms     int64
		)
		if err := rows.Scan(&l.ID, &l.Action, &l.Category, &detail, &l.Operator, &l.OperatorName, &l.Outcome, &ms); err != nil {
			logger.Errorf("GetLogs: scan failed: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
			return
		}
		if detail.Valid && detail.String != "" {
			l.Detail = json.RawMessage(detail.String)
		}
		l.Timestamp = time.UnixMilli(ms)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		logger.Errorf("GetLogs: rows failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database error"})
		return
	}

	c.JSON(http.StatusOK, out)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
	"github.com/holdersav20001/enterprise-tool-router/pkg/models"
)

// HandleQuery handles POST /query: bind, route, execute, respond.
func (s *Server) HandleQuery(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.NewSafetyError("invalid request: "+err.Error()))
		return
	}

	// A header-supplied correlation ID wins over the body; when neither is
	// present the middleware's minted ID fills the gap. The effective ID is
	// echoed on the response so transport logs and audit rows line up.
	if hdr := c.GetHeader(CorrelationHeader); hdr != "" {
		req.CorrelationID = hdr
	} else if req.CorrelationID == "" {
		req.CorrelationID = correlationFrom(c)
	}
	c.Header(CorrelationHeader, req.CorrelationID)
	if req.UserID == "" {
		// Per-IP admission when the caller does not identify itself.
		req.UserID = c.ClientIP()
	}

	resp, err := s.router.Handle(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleAuditRecords handles GET /audit, optionally filtered by
// correlation_id, newest first.
func (s *Server) HandleAuditRecords(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	records, err := s.audit.GetRecords(c.Request.Context(), c.Query("correlation_id"), limit)
	if err != nil {
		s.logger.Error("Audit read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// HandleHistory handles GET /history: the newest stored queries.
func (s *Server) HandleHistory(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	entries, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("History read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

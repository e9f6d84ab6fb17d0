package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/insightlab/reportstream/internal/errors"
	"github.com/insightlab/reportstream/internal/store"
)

func (s *Server) handleListReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		apierrors.AbortWithInternal(c, "listing reports failed", nil)
		return
	}

	type summary struct {
		ReportID  string `json:"report_id"`
		SessionID string `json:"session_id,omitempty"`
		Title     string `json:"title"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]summary, 0, len(records))
	for _, rec := range records {
		out = append(out, summary{
			ReportID:  rec.ReportID,
			SessionID: rec.SessionID,
			Title:     rec.Title,
			CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"reports": out})
}

func (s *Server) handleGetReport(c *gin.Context) {
	rec, ok := s.lookupReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetReportHTML(c *gin.Context) {
	rec, ok := s.lookupReport(c)
	if !ok {
		return
	}
	view := rec.View
	if view == nil {
		// Stored before view persistence; finalize on demand.
		view = s.finalizer.Finalize(rec.Report)
	}
	html, err := s.renderer.Report(view)
	if err != nil {
		s.log.Error("rendering report failed", "report_id", rec.ReportID, "error", err)
		apierrors.AbortWithInternal(c, "rendering report failed", nil)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleDeleteReport(c *gin.Context) {
	id := c.Param("report_id")
	err := s.store.Delete(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apierrors.AbortWithNotFound(c, "report not found", map[string]interface{}{"report_id": id})
		return
	}
	if err != nil {
		apierrors.AbortWithInternal(c, "deleting report failed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "report_id": id})
}

func (s *Server) lookupReport(c *gin.Context) (*store.Record, bool) {
	id := c.Param("report_id")
	rec, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apierrors.AbortWithNotFound(c, "report not found", map[string]interface{}{"report_id": id})
		return nil, false
	}
	if err != nil {
		apierrors.AbortWithInternal(c, "loading report failed", nil)
		return nil, false
	}
	return rec, true
}

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getSystemStatus exposes runtime mode and venue for the dashboard.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status(c.Request.Context()))
}

// getSymbols returns every symbol's latest snapshot.
func (s *Server) getSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Snapshots())
}

func (s *Server) getSymbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	snap, ok := s.Engine.Snapshot(symbol)
	if !ok {
		respondError(c, http.StatusNotFound, "SYMBOL_NOT_FOUND", "symbol "+symbol+" is not traded")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// getLimits returns the gateway's rate-limit window usage.
func (s *Server) getLimits(c *gin.Context) {
	if s.Limits == nil {
		respondError(c, http.StatusServiceUnavailable, "LIMITS_UNAVAILABLE", "rate limits not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"windows": s.Limits.Usage(),
		"pending": s.Limits.Pending(),
	})
}

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"index-signal-engine/internal/models"
)

func (s *Server) handleActiveSignals(c *gin.Context) {
	signals, err := s.signals.FindActive(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("active signal query failed")
		errorResponse(c, http.StatusInternalServerError, "signal store unavailable")
		return
	}
	successResponse(c, gin.H{"count": len(signals), "signals": signals})
}

func (s *Server) handleActiveSignalsBySymbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	signals, err := s.signals.FindActive(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("active signal query failed")
		errorResponse(c, http.StatusInternalServerError, "signal store unavailable")
		return
	}

	matched := make([]models.Signal, 0)
	for _, signal := range signals {
		if signal.Symbol == symbol {
			matched = append(matched, signal)
		}
	}
	successResponse(c, gin.H{"count": len(matched), "signals": matched})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

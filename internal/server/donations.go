package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListDonations(c *gin.Context) {
	skip, take := parsePageQuery(c)

	donations, total, err := s.donationSvc.FindAll(c.Request.Context(), skip, take)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"total":     total,
	})
}

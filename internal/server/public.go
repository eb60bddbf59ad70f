package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ambassadordomain "github.com/smallbiznis/ambassador/internal/ambassador/domain"
)

func (s *Server) SendInvitation(c *gin.Context) {
	var req ambassadordomain.SendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("deal_name", strings.TrimSpace(req.DealName))

	resp, err := s.ambassadorSvc.SendInvitation(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"invitationToken": resp.InvitationToken,
		"expiresAt":       resp.ExpiresAt,
	})
}

func (s *Server) ValidateInvitation(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		AbortWithError(c, newValidationError("token", "invalid_token", "token is required"))
		return
	}

	view, err := s.ambassadorSvc.ValidateInvitation(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"invitation": view,
	})
}

func (s *Server) CompleteInvitationRegistration(c *gin.Context) {
	var req ambassadordomain.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, newValidationError("token", "invalid_token", "token is required"))
		return
	}

	affiliate, err := s.ambassadorSvc.AcceptInvitation(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("deal_name", affiliate.DealName)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"affiliate": affiliate,
	})
}

func (s *Server) GraphAmbassadorStatus(c *gin.Context) {
	status, err := s.ambassadorSvc.GraphAmbassadorStatus(c.Request.Context(), graphIDsFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"ambassadorStatus": status,
	})
}

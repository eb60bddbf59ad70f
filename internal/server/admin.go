package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/ambassador/internal/affiliate/domain"
	invitationdomain "github.com/smallbiznis/ambassador/internal/invitation/domain"
)

func (s *Server) ListGraphAffiliates(c *gin.Context) {
	affiliates, err := s.affiliateSvc.ListByGraph(c.Request.Context(), c.Param("graphId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "affiliates": affiliates})
}

func (s *Server) ListGraphInvitations(c *gin.Context) {
	pageSize, err := parseOptionalInt(c.Query("pageSize"))
	if err != nil {
		AbortWithError(c, newValidationError("pageSize", "invalid_page_size", "pageSize must be a number"))
		return
	}

	resp, err := s.invitationSvc.ListByDeal(c.Request.Context(), invitationdomain.ListInvitationRequest{
		DealName:  c.Param("graphId"),
		Status:    c.Query("status"),
		PageToken: c.Query("pageToken"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"invitations":   resp.Invitations,
		"nextPageToken": resp.NextPageToken,
		"hasMore":       resp.HasMore,
	})
}

// RefreshGraphMetadata queues a metadata refresh. With sync=true the graph is
// updated inline and the written metadata is returned.
func (s *Server) RefreshGraphMetadata(c *gin.Context) {
	graphID := c.Param("graphId")
	if sync, _ := strconv.ParseBool(c.Query("sync")); sync {
		meta, err := s.ambassadorSvc.RefreshGraphMetadata(c.Request.Context(), graphID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "metadata": meta})
		return
	}

	task, err := s.ambassadorSvc.EnqueueMetadataRefresh(c.Request.Context(), graphID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "task": task})
}

func (s *Server) FindAffiliates(c *gin.Context) {
	ctx := c.Request.Context()
	if code := strings.TrimSpace(c.Query("referralCode")); code != "" {
		affiliate, err := s.affiliateSvc.FindByReferralCode(ctx, code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "affiliates": []affiliatedomain.Affiliate{affiliate}})
		return
	}

	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		AbortWithError(c, newValidationError("email", "invalid_email", "email or referralCode is required"))
		return
	}
	affiliates, err := s.affiliateSvc.ListByEmail(ctx, email)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "affiliates": affiliates})
}

func (s *Server) GetAffiliate(c *gin.Context) {
	affiliate, err := s.affiliateSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "affiliate": affiliate})
}

func (s *Server) UpdateAffiliate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var update affiliatedomain.AffiliateUpdate
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&update); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "unknown or malformed field"))
		return
	}

	affiliate, err := s.affiliateSvc.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "affiliate": affiliate})
}

func (s *Server) ResendInvitation(c *gin.Context) {
	task, err := s.ambassadorSvc.ResendInvitationEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "task": task})
}

func (s *Server) RetryOutboxTask(c *gin.Context) {
	task, err := s.outboxSvc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": task})
}

func (s *Server) OutboxStats(c *gin.Context) {
	stats, err := s.outboxSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

package main

import (
	"outreach-dialer/internal/app"
	"outreach-dialer/internal/auth"
	"outreach-dialer/internal/config"
	"outreach-dialer/internal/httpapi"
	"outreach-dialer/internal/rbac"
	"outreach-dialer/internal/realtime"
	"outreach-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, a *app.App, authManager *auth.Manager) {
	h := httpapi.Handlers{
		Auth:          authManager,
		IssueTokens:   !cfg.IsProduction(),
		Dialer:        a.Coordinator,
		Events:        a.Processor,
		Queue:         a.Queue,
		Repo:          a.Repo,
		Reporting:     a.Reporting,
		Credits:       a.Credits,
		QueueLowWater: cfg.Dialer.QueueLowWater,
		Health:        a.Health,
	}

	// public
	r.GET("/healthz", h.Healthz)
	r.POST("/dev/token", h.DevToken)

	// Provider callbacks and answer documents.
	provider := r.Group("")
	if cfg.Twilio.ValidateSignatures {
		provider.Use(telephony.ValidateSignature(cfg.Twilio.AuthToken, cfg.Dialer.PublicBaseURL))
	}
	{
		answer := telephony.AnswerHandler{URLs: a.URLs}
		provider.POST(telephony.PathStatusCallback, h.CallStatus)
		provider.POST(telephony.PathConferenceCallback, h.ConferenceEvent)
		provider.POST(telephony.PathConferenceAnswer, answer.Conference)
		provider.POST(telephony.PathBridgeAnswer, answer.Bridge)
	}

	// Presence stream. EventSource cannot set headers, so the token may ride in the query.
	stream := realtime.StreamHandler{Notifier: a.Notifier}
	r.GET("/v1/realtime/stream", auth.RequireStreamToken(authManager), rbac.RequireWorkspace(), stream.Stream)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	v1.Use(rbac.RequireWorkspace())
	{
		v1.GET("/me", h.Me)
		v1.GET("/credits", h.CreditBalance)

		dialing := v1.Group("")
		dialing.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAgent))
		{
			dialing.POST("/dial", h.Dial)
			dialing.POST("/campaigns/:id/leave", h.LeaveCampaign)
			dialing.POST("/campaigns/:id/queue/dequeue", h.Dequeue)
			dialing.POST("/campaigns/:id/queue/more", h.More)
			dialing.POST("/campaigns/:id/queue/next", h.Next)
			dialing.POST("/campaigns/:id/queue/admit", h.Admit)
			dialing.GET("/campaigns/:id/contacts/:contact_id/attempt", h.RecentAttempt)
		}

		reports := v1.Group("/campaigns")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAnalyst))
		{
			reports.GET("/:id/summary", h.CampaignSummary)
		}
	}
}

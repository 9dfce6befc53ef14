package httpapi

import (
	"net/http"

	"outreach-dialer/internal/outreach"
	"outreach-dialer/internal/queue"
	"outreach-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

type dequeueRequest struct {
	ContactID        int64  `json:"contact_id"`
	GroupOnHousehold *bool  `json:"group_on_household"`
	Reason           string `json:"reason"`
}

// Dequeue removes a contact (and by default its household, per campaign setting).
func (h Handlers) Dequeue(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	var req dequeueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ContactID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contact_id required"})
		return
	}
	household := camp.GroupHouseholdQueue
	if req.GroupOnHousehold != nil {
		household = *req.GroupOnHousehold
	}
	reason := req.Reason
	if reason == "" {
		reason = "agent"
	}

	n, err := h.Queue.Dequeue(c.Request.Context(), queue.DequeueRequest{
		CampaignID:       camp.ID,
		ContactID:        req.ContactID,
		GroupOnHousehold: household,
		By:               id.UserID,
		Reason:           reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dequeued": n})
}

type moreRequest struct {
	// Loaded is the contact ids already in the agent's working set.
	Loaded []int64 `json:"loaded"`
	Limit  int     `json:"limit"`
}

// More admits queued entries not yet in the agent's working set.
func (h Handlers) More(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	var req moreRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Limit < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	loaded := make([]outreach.QueueEntry, 0, len(req.Loaded))
	for _, contactID := range req.Loaded {
		loaded = append(loaded, outreach.QueueEntry{CampaignID: camp.ID, ContactID: contactID})
	}

	entries, err := h.Queue.FetchMore(c.Request.Context(), camp.ID, loaded, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type nextRequest struct {
	Loaded           []outreach.QueueEntry `json:"loaded"`
	CurrentContactID int64                 `json:"current_contact_id"`
	SkipHousehold    bool                  `json:"skip_household"`
}

// Next picks the next dialable entry from the caller's working set without a
// store round trip, and tells the UI when the set is running low.
func (h Handlers) Next(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	var req nextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	households := queue.IndexHouseholds(req.Loaded)
	next, found := queue.NextInLoadedSet(req.Loaded, households, req.CurrentContactID, camp.GroupHouseholdQueue, req.SkipHousehold)
	remaining := queue.RemainingHouseholds(req.Loaded, households, req.CurrentContactID)

	resp := gin.H{
		"found":      found,
		"remaining":  remaining,
		"needs_more": queue.NeedsMore(remaining, h.QueueLowWater),
	}
	if found {
		resp["entry"] = next
	}
	c.JSON(http.StatusOK, resp)
}

type admitRequest struct {
	ContactIDs []int64 `json:"contact_ids"`
}

// Admit appends contacts to the campaign queue. Supervisors only.
func (h Handlers) Admit(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if !rbac.IsSupervisor(id.Role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	camp, ok := h.campaign(c, id)
	if !ok {
		return
	}
	var req admitRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ContactIDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contact_ids required"})
		return
	}
	n, err := h.Queue.Admit(c.Request.Context(), camp.ID, req.ContactIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admitted": n})
}

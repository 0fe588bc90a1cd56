package storage

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type presenceResponse struct {
	UserID      string          `json:"userId"`
	Online      bool            `json:"online"`
	Connections []PresenceEntry `json:"connections"`
}

// PresenceHandler serves GET /internal/presence/:userId across all nodes.
func (p *Presence) PresenceHandler(c *gin.Context) {
	userID := c.Param("userId")
	online, err := p.IsOnline(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "presence unavailable"})
		return
	}
	resp := presenceResponse{UserID: userID, Online: online, Connections: []PresenceEntry{}}
	if online {
		if resp.Connections, err = p.Lookup(c.Request.Context(), userID); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "presence unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

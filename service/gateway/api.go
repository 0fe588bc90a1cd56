package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type statsResponse struct {
	Node string `json:"node"`
	Stats
	Events []string `json:"events"`
}

// StatsHandler reports live connection counts for this node.
func (g *Gateway) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, statsResponse{
		Node:   g.opts.NodeID,
		Stats:  g.reg.Stats(),
		Events: EventTypes(),
	})
}

package inspect

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
)

// health reports whether the configuration reached its final state
func (s *Server) health(c *gin.Context) {
	cfg := s.block.Config()
	state := cfg.State()

	status := http.StatusOK
	body := gin.H{
		"status": "ok",
		"state":  state.String(),
		"frozen": s.block.IsPermanentlyFrozen(),
	}
	if !state.IsFinal() {
		status = http.StatusServiceUnavailable
		body["status"] = "starting"
	}
	if s.metrics != nil {
		body["metrics"] = s.metrics.Snapshot()
	}
	c.JSON(status, body)
}

// config returns the configuration snapshot
func (s *Server) config(c *gin.Context) {
	c.JSON(http.StatusOK, s.block.Snapshot())
}

// options lists every option, or only non-default ones with ?changed=true
func (s *Server) options(c *gin.Context) {
	entries := s.block.Config().Options().Dump()
	if c.Query("changed") == "true" {
		changed := entries[:0]
		for _, e := range entries {
			if !e.IsDefault {
				changed = append(changed, e)
			}
		}
		entries = changed
	}
	c.JSON(http.StatusOK, gin.H{
		"options": entries,
		"count":   len(entries),
	})
}

// option returns a single option by name
func (s *Server) option(c *gin.Context) {
	name := c.Param("name")
	if _, ok := options.Lookup(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown option " + name,
		})
		return
	}
	for _, e := range s.block.Config().Options().Dump() {
		if e.Name == name {
			c.JSON(http.StatusOK, e)
			return
		}
	}
}

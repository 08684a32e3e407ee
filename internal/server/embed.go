package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/tsmreport/internal/report"
)

// handleIndex renders the embedded index page listing every instance's
// newest snapshot and its groups. Instances whose snapshot no longer parses
// are left out.
func (a *API) handleIndex(c *gin.Context) {
	names, err := a.Store.ListInstances()
	if err != nil {
		c.String(http.StatusInternalServerError, "listing instances: %v", err)
		return
	}

	var data report.IndexData
	for _, name := range names {
		inst, snap, err := a.load(name)
		if err != nil {
			if !errors.Is(err, ErrNoSnapshot) {
				_ = c.Error(err)
			}
			continue
		}
		data.Instances = append(data.Instances, report.InstanceIndex{
			Instance:    name,
			CollectedAt: snap.CollectedAt.In(a.location()),
			Groups:      inst.GroupList(),
		})
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := a.Renderer.RenderIndex(c.Writer, data); err != nil {
		_ = c.Error(err)
	}
}

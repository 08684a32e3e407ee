package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/tsmreport/internal/models"
	"github.com/vesaa/tsmreport/internal/parsing"
	"github.com/vesaa/tsmreport/internal/report"
)

// API serves cached snapshots as JSON summaries and rendered reports.
type API struct {
	Store     *Store
	Renderer  *report.Renderer
	Retention int
	Location  *time.Location
}

// NewEngine returns a gin engine with all routes registered.
//
//	Public:          GET /healthz, POST /api/login, GET /
//	Protected (JWT): GET /api/instances, /api/instances/:inst/groups,
//	                 /api/instances/:inst/deliveries, /reports/:inst/:group
func NewEngine(a *API) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	a.Register(r)
	return r
}

// Register wires up the routes on r.
func (a *API) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/", a.handleIndex)

	api := r.Group("/api")

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.POST("/login", handleLogin)

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	auth := api.Group("/", JWTMiddleware())
	{
		auth.GET("/instances", a.handleInstances)
		auth.GET("/instances/:inst/groups", a.handleGroups)
		auth.GET("/instances/:inst/deliveries", a.handleDeliveries)
	}

	reports := r.Group("/reports", JWTMiddleware())
	reports.GET("/:inst/:group", a.handleReport)
}

// load rebuilds the hierarchy of the newest snapshot of inst. Staleness is
// judged against the collection time, so old snapshots still show the jobs
// that were current when they were taken.
func (a *API) load(inst string) (*parsing.Instance, *models.Snapshot, error) {
	snap, err := a.Store.LatestSnapshot(inst, 0, time.Now())
	if err != nil {
		return nil, nil, err
	}
	b := parsing.Builder{Now: snap.CollectedAt, Retention: a.Retention, Location: a.Location}
	built, err := b.Build(inst, snap.RecordSets())
	if err != nil {
		return nil, nil, err
	}
	return built, snap, nil
}

func (a *API) loadError(c *gin.Context, err error) {
	if errors.Is(err, ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for instance"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "..." }
func handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if !checkCredentials(body.Username, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookie, token, int(tokenTTL/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL / time.Second),
		"type":       "Bearer",
	})
}

// groupSummary is the JSON view of one group.
type groupSummary struct {
	Name         string                  `json:"name"`
	Contact      string                  `json:"contact,omitempty"`
	Status       string                  `json:"status"`
	Nodes        int                     `json:"nodes"`
	HasJobs      bool                    `json:"has_jobs"`
	HasVMResults bool                    `json:"has_vm_results"`
	Activity     parsing.ActivitySummary `json:"activity"`
	VMSummary    parsing.VMResult        `json:"vm_summary"`
}

// handleInstances lists instances with their newest snapshot.
func (a *API) handleInstances(c *gin.Context) {
	names, err := a.Store.ListInstances()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		snap, err := a.Store.LatestSnapshot(name, 0, time.Now())
		if err != nil {
			continue
		}
		out = append(out, gin.H{
			"instance":     name,
			"run_id":       snap.RunID,
			"collected_at": snap.CollectedAt,
			"nodes":        len(snap.Inventory),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleGroups returns the group summaries of an instance.
func (a *API) handleGroups(c *gin.Context) {
	inst, snap, err := a.load(c.Param("inst"))
	if err != nil {
		a.loadError(c, err)
		return
	}
	groups := inst.GroupList()
	out := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupSummary{
			Name:         g.Name,
			Contact:      g.Contact,
			Status:       report.Status(g),
			Nodes:        len(g.Nodes),
			HasJobs:      g.HasJobs(),
			HasVMResults: g.HasVMResults(),
			Activity:     g.Activity,
			VMSummary:    g.VMSummary,
		})
	}
	c.JSON(http.StatusOK, gin.H{"run_id": snap.RunID, "collected_at": snap.CollectedAt, "data": out})
}

// handleDeliveries returns the mail history of an instance.
func (a *API) handleDeliveries(c *gin.Context) {
	list, err := a.Store.ListDeliveries(c.Param("inst"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// handleReport renders the HTML report of one group.
func (a *API) handleReport(c *gin.Context) {
	inst, snap, err := a.load(c.Param("inst"))
	if err != nil {
		a.loadError(c, err)
		return
	}
	g, ok := inst.Groups[c.Param("group")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown group"})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	err = a.Renderer.Render(c.Writer, report.Data{
		Instance:    inst.ID,
		Group:       g,
		GeneratedAt: snap.CollectedAt.In(a.location()),
	})
	if err != nil {
		_ = c.Error(err)
	}
}

func (a *API) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.Local
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuxishi/aws-quota-monitor/internal/cache"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
	"github.com/yuxishi/aws-quota-monitor/internal/poller"
	"github.com/yuxishi/aws-quota-monitor/internal/quota"
	"github.com/yuxishi/aws-quota-monitor/internal/scheduler"
)

// Catalog is the quota catalog of one region.
type Catalog interface {
	Services(ctx context.Context) ([]model.ServiceStatus, error)
	SetMonitoring(ctx context.Context, serviceCode string, monitored bool) error
	Entries(ctx context.Context, serviceCode string) ([]model.CatalogEntry, error)
}

// PollFunc runs a poll of every region now.
type PollFunc func(ctx context.Context) ([]poller.Result, error)

// QuotaRow is a catalog entry with the region it belongs to.
type QuotaRow struct {
	Region string `json:"region"`
	model.CatalogEntry
}

type QuotaResponse struct {
	Quotas    []QuotaRow `json:"quotas"`
	Total     int        `json:"total"`
	FetchedAt time.Time  `json:"fetched_at"`
	FromCache bool       `json:"from_cache"`
}

// PollSummary is the JSON view of a poller.Result.
type PollSummary struct {
	Region    string `json:"region"`
	Service   string `json:"service"`
	Quotas    int    `json:"quotas"`
	Evaluated int    `json:"evaluated"`
	Forwarded int    `json:"forwarded"`
	Error     string `json:"error,omitempty"`
}

type Handler struct {
	catalogs      map[string]Catalog
	regions       []string
	defaultRegion string
	poll          PollFunc
	cache         *cache.Cache[[]QuotaRow]
	config        any
}

// New builds a handler over the catalogs of regions, in order. The first
// region is the default for requests that name none.
func New(regions []string, catalogs map[string]Catalog, poll PollFunc, c *cache.Cache[[]QuotaRow]) *Handler {
	h := &Handler{
		catalogs: catalogs,
		regions:  regions,
		poll:     poll,
		cache:    c,
	}
	if len(regions) > 0 {
		h.defaultRegion = regions[0]
	}
	return h
}

// SetConfig sets what GET /api/config returns.
func (h *Handler) SetConfig(config any) {
	h.config = config
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.GET("/config", h.GetConfig)
		api.GET("/regions", h.GetRegions)
		api.GET("/services", h.GetServices)
		api.PUT("/services/:code", h.SetMonitoring)
		api.GET("/quotas", h.GetQuotas)
		api.POST("/poll", h.Poll)
		api.POST("/refresh", h.Refresh)
		api.GET("/export/json", h.ExportJSON)
		api.GET("/export/html", h.ExportHTML)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) catalog(c *gin.Context) (string, Catalog, bool) {
	region := c.DefaultQuery("region", h.defaultRegion)
	cat, ok := h.catalogs[region]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region " + region + " is not monitored"})
		return "", nil, false
	}
	return region, cat, true
}

func (h *Handler) GetRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regions": h.regions})
}

func (h *Handler) GetServices(c *gin.Context) {
	region, cat, ok := h.catalog(c)
	if !ok {
		return
	}
	services, err := cat.Services(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": region, "services": services})
}

type monitoringRequest struct {
	Monitored *bool `json:"monitored" binding:"required"`
}

func (h *Handler) SetMonitoring(c *gin.Context) {
	region, cat, ok := h.catalog(c)
	if !ok {
		return
	}
	var req monitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	err := cat.SetMonitoring(c.Request.Context(), code, *req.Monitored)
	var cfgErr *quota.IncorrectConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"region": region, "service_code": code, "monitored": *req.Monitored})
}

// loadQuotas returns the catalog rows of region, for one service or for
// every service in the catalog, through the cache.
func (h *Handler) loadQuotas(ctx context.Context, region string, cat Catalog, service string) ([]QuotaRow, bool, error) {
	key := "quotas:" + region + ":" + service
	return h.cache.GetOrLoad(key, func() ([]QuotaRow, error) {
		services := []string{service}
		if service == "" {
			statuses, err := cat.Services(ctx)
			if err != nil {
				return nil, err
			}
			services = services[:0]
			for _, s := range statuses {
				services = append(services, s.ServiceCode)
			}
		}

		rows := make([]QuotaRow, 0)
		for _, s := range services {
			entries, err := cat.Entries(ctx, s)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				rows = append(rows, QuotaRow{Region: region, CatalogEntry: e})
			}
		}
		return rows, nil
	})
}

func (h *Handler) GetQuotas(c *gin.Context) {
	region, cat, ok := h.catalog(c)
	if !ok {
		return
	}
	rows, fromCache, err := h.loadQuotas(c.Request.Context(), region, cat, c.Query("service"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if search := strings.ToLower(c.Query("search")); search != "" {
		filtered := make([]QuotaRow, 0)
		for _, q := range rows {
			if strings.Contains(strings.ToLower(q.QuotaName), search) ||
				strings.Contains(strings.ToLower(q.ServiceName), search) ||
				strings.Contains(strings.ToLower(q.QuotaCode), search) {
				filtered = append(filtered, q)
			}
		}
		rows = filtered
	}

	c.JSON(http.StatusOK, QuotaResponse{
		Quotas:    rows,
		Total:     len(rows),
		FetchedAt: time.Now(),
		FromCache: fromCache,
	})
}

func (h *Handler) Poll(c *gin.Context) {
	if h.poll == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "polling is not configured"})
		return
	}
	results, err := h.poll(c.Request.Context())
	if errors.Is(err, scheduler.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	summaries := make([]PollSummary, 0, len(results))
	for _, r := range results {
		s := PollSummary{
			Region:    r.Region,
			Service:   r.Service,
			Quotas:    r.Quotas,
			Evaluated: r.Evaluated,
			Forwarded: r.Forwarded,
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		summaries = append(summaries, s)
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"results": summaries, "failed": len(poller.Failed(results))})
}

func (h *Handler) Refresh(c *gin.Context) {
	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{
		"message": "Cache cleared successfully",
	})
}

func (h *Handler) GetConfig(c *gin.Context) {
	if h.config == nil {
		c.JSON(http.StatusOK, gin.H{"default_region": h.defaultRegion})
		return
	}
	c.JSON(http.StatusOK, h.config)
}

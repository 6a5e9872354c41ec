// Package contexts mounts the REST surface consumed by the webhook and
// command handlers. Write endpoints mirror the service's best-effort
// semantics: they return 204 whether or not persistence succeeded, and
// reads always answer 200 with a possibly degraded value.
package contexts

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnibot/context-service/internal/model"
	"github.com/omnibot/context-service/internal/service"
)

// MountRoutes mounts the context endpoints on the given router.
func MountRoutes(r *gin.Engine, svc *service.ContextService, auth gin.HandlerFunc) {
	g := r.Group("/v1/contexts", auth)

	g.GET("/:identity", func(c *gin.Context) { getContext(c, svc) })
	g.PATCH("/:identity", func(c *gin.Context) { updateContext(c, svc) })
	g.DELETE("/:identity", func(c *gin.Context) { clearContext(c, svc) })
	g.GET("/:identity/domains/:domain", func(c *gin.Context) { getDomainContext(c, svc) })
	g.POST("/:identity/history", func(c *gin.Context) { addToHistory(c, svc) })
	g.PUT("/:identity/preferences/:key", func(c *gin.Context) { setPreference(c, svc) })
	g.GET("/:identity/preferences/:key", func(c *gin.Context) { getPreference(c, svc) })
}

func identityParam(c *gin.Context) (string, bool) {
	identity := c.Param("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity is required"})
		return "", false
	}
	return identity, true
}

func getContext(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, svc.GetContext(c.Request.Context(), identity))
}

type updateContextRequest struct {
	Updates map[string]model.Value `json:"updates" binding:"required"`
	Domain  string                 `json:"domain"`
}

func updateContext(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	var req updateContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "updates must not be empty"})
		return
	}
	svc.UpdateContext(c.Request.Context(), identity, req.Updates, req.Domain)
	c.Status(http.StatusNoContent)
}

func clearContext(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	svc.ClearContext(c.Request.Context(), identity)
	c.Status(http.StatusNoContent)
}

func getDomainContext(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	domain := c.Param("domain")
	c.JSON(http.StatusOK, svc.GetDomainContext(c.Request.Context(), identity, domain))
}

type addToHistoryRequest struct {
	Message  string `json:"message"`
	Response string `json:"response"`
	Domain   string `json:"domain" binding:"required"`
}

func addToHistory(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	var req addToHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svc.AddToHistory(c.Request.Context(), identity, req.Message, req.Response, req.Domain)
	c.Status(http.StatusNoContent)
}

type setPreferenceRequest struct {
	Value model.Value `json:"value"`
}

func setPreference(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	var req setPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svc.SetPreference(c.Request.Context(), identity, c.Param("key"), req.Value)
	c.Status(http.StatusNoContent)
}

func getPreference(c *gin.Context, svc *service.ContextService) {
	identity, ok := identityParam(c)
	if !ok {
		return
	}
	key := c.Param("key")
	def := model.Null()
	if raw, present := c.GetQuery("default"); present {
		def = model.DecodeStored(raw)
	}
	value := svc.GetPreference(c.Request.Context(), identity, key, def)
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

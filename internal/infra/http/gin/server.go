package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"hostboard/internal/infra/config"
	"hostboard/internal/infra/obs"
)

type CalendarHTTP interface {
	OpenSession(c *gin.Context)
	GetSession(c *gin.Context)
	Cell(c *gin.Context)
	DateDetail(c *gin.Context)
	Navigate(c *gin.Context)
	Gesture(c *gin.Context)
	CancelSelection(c *gin.Context)
	Commit(c *gin.Context)
	CloseSession(c *gin.Context)
}

type FeedHTTP interface {
	PropertyFeed(c *gin.Context)
}

type Handlers struct {
	Calendar CalendarHTTP
	Feed     FeedHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins(cfg.CORSOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", headerUserID, headerUserRole, headerPlatformToken},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(PrincipalMiddleware)

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Calendar != nil {
		sessions := api.Group("/calendar/sessions")
		sessions.POST("", h.Calendar.OpenSession)
		sessions.GET("/:sid", h.Calendar.GetSession)
		sessions.DELETE("/:sid", h.Calendar.CloseSession)
		sessions.GET("/:sid/cells/:date", h.Calendar.Cell)
		sessions.GET("/:sid/dates/:date", h.Calendar.DateDetail)
		sessions.POST("/:sid/navigate", h.Calendar.Navigate)
		sessions.POST("/:sid/gestures", h.Calendar.Gesture)
		sessions.DELETE("/:sid/selection", h.Calendar.CancelSelection)
		sessions.POST("/:sid/commit", h.Calendar.Commit)
	}
	if h.Feed != nil {
		api.GET("/properties/:id/calendar.ics", h.Feed.PropertyFeed)
	}
	return router
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

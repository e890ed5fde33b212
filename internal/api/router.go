package api

import (
	"github.com/gin-gonic/gin"

	"github.com/policyradar/protocols/internal/api/handler"
	"github.com/policyradar/protocols/internal/api/middleware"
	"github.com/policyradar/protocols/internal/config"
)

// Deps are the services the HTTP API serves from. Runs may be nil when the
// run ledger is disabled.
type Deps struct {
	Search handler.Searcher
	Index  handler.Pinger
	Runs   handler.RunLister
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORSOrigins))

	healthHandler := handler.NewHealthHandler(deps.Index)
	searchHandler := handler.NewSearchHandler(deps.Search)

	r.GET("/healthz", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", searchHandler.Search)
		v1.GET("/search", searchHandler.SearchGet)
		v1.GET("/documents/:id", searchHandler.GetDocument)

		if deps.Runs != nil {
			runHandler := handler.NewRunHandler(deps.Runs)
			v1.GET("/runs", runHandler.List)
			v1.GET("/runs/:id", runHandler.Get)
		}
	}

	return r
}

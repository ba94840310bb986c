package ledger

import (
	"petcare-loyalty/pkg/health"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

var Module = fx.Module("loyalty.service",
	fx.Provide(NewService),
	fx.Invoke(
		autoMigrate,
		registerRoutes,
		registerHealthServer,
	),
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PrincipalBalance{},
		&ActivityEntry{},
		&Incident{},
	)
}

type registerRoutesParams struct {
	fx.In

	Router  *gin.Engine
	Service *Service
	Health  health.HealthService
}

func registerRoutes(p registerRoutesParams) {
	p.Router.GET("/healthz", p.Health.Liveness)
	p.Router.GET("/readyz", p.Health.Readiness)

	v1 := p.Router.Group("/v1/loyalty")
	v1.POST("/points/apply", p.Service.handleApplyDelta)
	v1.GET("/principals/:principal_id/status", p.Service.handleGetStatus)
	v1.GET("/principals/:principal_id/activity", p.Service.handleListActivity)

	p.Router.POST("/v1/hooks/payment-completed", p.Service.handlePaymentCompleted)
}

func registerHealthServer(server *grpc.Server, service *Service) {
	grpc_health_v1.RegisterHealthServer(server, service)
}

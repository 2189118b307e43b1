package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/app"
	iauth "github.com/adeelraza/floodcoord/internal/auth"
	"github.com/adeelraza/floodcoord/internal/cache"
	"github.com/adeelraza/floodcoord/internal/handlers"
	"github.com/adeelraza/floodcoord/internal/middleware"
	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/payment"
	"github.com/adeelraza/floodcoord/internal/services"
)

// Dependencies bundles everything the router needs. Provider and mailer may
// be nil when the corresponding integration is disabled.
type Dependencies struct {
	DB          *gorm.DB
	Config      *app.Config
	JWT         *iauth.JWTService
	Store       cache.Store
	Auth        *services.AuthService
	Users       *services.UserService
	Requests    *services.HelpRequestService
	Donations   *services.DonationService
	Invitations *services.InvitationService
	Geography   *services.GeographyService
	Provider    payment.Provider
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	r.Use(middleware.RateLimit(deps.Store, deps.Config.Server.RateLimit, deps.Config.Server.RateWindow))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Users)
	requestHandler := handlers.NewHelpRequestHandler(deps.Requests)
	donationHandler := handlers.NewDonationHandler(deps.Donations, deps.Provider)
	invitationHandler := handlers.NewInvitationHandler(deps.Invitations)
	userHandler := handlers.NewUserHandler(deps.Users)
	geographyHandler := handlers.NewGeographyHandler(deps.Geography)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/verify-otp", authHandler.VerifyOTP)
	}

	// Public intake and donor routes. Affected individuals and donors are
	// not expected to hold accounts.
	r.POST("/api/helpRequest", requestHandler.Submit)
	r.POST("/api/donations", donationHandler.Create)
	r.POST("/api/donations/webhook", donationHandler.Webhook)
	r.GET("/api/donations/by-account/:accountNumber", donationHandler.ListByAccount)
	r.POST("/api/invitations/accept", invitationHandler.Accept)
	r.GET("/api/provinces", geographyHandler.ListProvinces)
	r.GET("/api/provinces/:id/cities", geographyHandler.ListCities)

	requireAuth := middleware.Auth(deps.JWT)
	coordinators := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleProvinceAdmin)
	responders := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleProvinceAdmin, models.RoleVolunteer)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	// Help requests
	requests := api.Group("/helpRequest")
	{
		requests.GET("", responders, requestHandler.List)
		requests.GET("/:id", responders, requestHandler.Get)
		requests.PUT("/:id/status", responders, requestHandler.UpdateStatus)
		requests.POST("/:id/assign", coordinators, requestHandler.Assign)
		requests.POST("/:id/unassign", coordinators, requestHandler.Unassign)
		requests.GET("/:id/audits", coordinators, requestHandler.ListAudits)
		requests.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), requestHandler.Delete)
	}

	// Donations (administrative surface)
	donations := api.Group("/donations")
	{
		donations.GET("", coordinators, donationHandler.List)
		donations.GET("/statistics", coordinators, donationHandler.Statistics)
		donations.POST("/:id/distribute", coordinators, donationHandler.Distribute)
	}

	// Invitations
	invitations := api.Group("/invitations")
	{
		invitations.POST("", coordinators, invitationHandler.Create)
		invitations.GET("", coordinators, invitationHandler.List)
		invitations.POST("/:id/resend", coordinators, invitationHandler.Resend)
		invitations.DELETE("/:id", coordinators, invitationHandler.Revoke)
	}

	// Users
	users := api.Group("/users")
	{
		users.GET("", coordinators, userHandler.List)
		users.GET("/:id", coordinators, userHandler.Get)
		users.PATCH("/:id/active", coordinators, userHandler.SetActive)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

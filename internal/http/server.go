package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/store"
)

type Deps struct {
	Accounts *account.Service
	Store    store.Store
	Customer *assistant.Executor
	Admin    *assistant.Executor
	Logger   *slog.Logger
	GinMode  string
}

type Server struct {
	engine   *gin.Engine
	accounts *account.Service
	store    store.Store
	customer *assistant.Executor
	admin    *assistant.Executor
	logger   *slog.Logger
}

func NewServer(deps Deps) *Server {
	if deps.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if deps.GinMode == gin.TestMode {
		gin.SetMode(gin.TestMode)
	}

	logger := deps.Logger.With(slog.String("component", "http"))
	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		engine:   r,
		accounts: deps.Accounts,
		store:    deps.Store,
		customer: deps.Customer,
		admin:    deps.Admin,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/ping", healthCheck)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/ping", healthCheck)

		v1.POST("/auth/register", s.register)
		v1.POST("/auth/login", s.login)
		v1.POST("/admin/login", s.adminLogin)
		v1.POST("/auth/logout", s.authenticate(""), s.logout)

		medicines := v1.Group("/medicines")
		medicines.GET("", s.listMedicines)
		medicines.GET("/:name", s.getMedicine)

		customer := v1.Group("", s.authenticate(auth.RoleUser))
		customer.POST("/chat", s.chat(s.customer))
		customer.GET("/chat/history", s.chatHistory)
		customer.GET("/orders", s.listOrders)

		admin := v1.Group("/admin", s.authenticate(auth.RoleAdmin))
		admin.POST("/chat", s.chat(s.admin))
		admin.GET("/status", s.adminStatus)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

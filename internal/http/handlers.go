package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
)

func (s *Server) register(c *gin.Context) {
	var req account.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	u, err := s.accounts.Register(c.Request.Context(), req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"email":   u.Email,
	})
}

func (s *Server) login(c *gin.Context) {
	var req account.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	login, err := s.accounts.Login(c.Request.Context(), req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, login)
}

func (s *Server) adminLogin(c *gin.Context) {
	var req account.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	login, err := s.accounts.AdminLogin(c.Request.Context(), req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, login)
}

func (s *Server) logout(c *gin.Context) {
	s.accounts.Logout(currentSession(c))
	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

type chatResponse struct {
	Answer      string   `json:"answer"`
	ToolsCalled []string `json:"tools_called"`
}

// chat runs one turn on the caller's session with the given executor.
func (s *Server) chat(exec *assistant.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message value missing"})
			return
		}

		sess := currentSession(c)
		ctx := c.Request.Context()

		var (
			turn   *assistant.Turn
			runErr error
		)
		sess.Turn(func(transcript []llm.Message) []llm.Message {
			turn, runErr = exec.Run(ctx, sess.Caller(), transcript, req.Message)
			if runErr != nil {
				return nil
			}
			if err := s.accounts.SaveTurn(ctx, sess, turn); err != nil {
				s.logger.Warn("failed to persist chat turn",
					slog.String(traceKey, traceID(c)),
					slog.String("email", sess.Email),
					slog.String("error", err.Error()),
				)
			}
			return turn.Transcript
		})

		if runErr != nil {
			s.logger.Error("chat turn failed",
				slog.String(traceKey, traceID(c)),
				slog.String("email", sess.Email),
				slog.String("error", runErr.Error()),
			)
			c.JSON(mapErrorToStatus(runErr), gin.H{"error": assistant.Apology})
			return
		}

		tools := turn.ToolsCalled
		if tools == nil {
			tools = []string{}
		}
		c.JSON(http.StatusOK, chatResponse{Answer: turn.Answer, ToolsCalled: tools})
	}
}

func (s *Server) chatHistory(c *gin.Context) {
	sess := currentSession(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	turns, err := s.accounts.ChatHistory(c.Request.Context(), sess.Email, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func (s *Server) listOrders(c *gin.Context) {
	cursor := c.Query("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	page, err := s.store.ListOrders(c.Request.Context(), currentSession(c).Email, cursor, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) adminStatus(c *gin.Context) {
	ctx := c.Request.Context()

	medicines, err := s.store.CountMedicines(ctx)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	pending, err := s.store.CountOrdersByStatus(ctx, models.OrderStatusPending)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"medicines":      medicines,
		"pending_orders": pending,
	})
}

func (s *Server) listMedicines(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := s.store.ListMedicines(c.Request.Context(), page, pageSize)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getMedicine(c *gin.Context) {
	m, err := s.store.GetMedicine(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

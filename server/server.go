package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	qrSize          = 256
	maxEventsLimit  = 500
	adminSubjectKey = "admin"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Server bundles what the HTTP handlers need
type Server struct {
	log       *zap.Logger
	hub       *Hub
	lobby     *Lobby
	auth      *Auth
	db        *DB
	publicURL string
}

// SetupRoutes configures HTTP routes
func SetupRoutes(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.ClientCount()})
	})
	r.GET("/ws", s.handleWS)
	r.GET("/games", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.lobby.List())
	})
	r.GET("/games/:id/qr", s.handleQR)

	r.POST("/admin/login", s.handleLogin)
	admin := r.Group("/admin", s.requireAdmin)
	admin.GET("/games/:id", s.handleAdminGame)
	admin.GET("/events", s.handleEvents)
	return r
}

func (s *Server) handleWS(c *gin.Context) {
	ip := extractIP(c.Request)
	if !s.hub.CanAccept(ip) {
		c.String(http.StatusServiceUnavailable, "too many connections")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("upgrade error", zap.Error(err))
		return
	}

	s.hub.TrackConnect(ip)

	client := NewClient(s.hub, conn, CodecByName(c.Query("enc")), ip)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) gameParam(c *gin.Context) (*GameServer, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad game id"})
		return nil, false
	}
	g, err := s.lobby.Game(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return g, true
}

// handleQR renders the join link of a game as a PNG
func (s *Server) handleQR(c *gin.Context) {
	g, ok := s.gameParam(c)
	if !ok {
		return
	}
	base := s.publicURL
	if base == "" {
		base = "http://" + c.Request.Host
	}
	link := fmt.Sprintf("%s/?game=%d", strings.TrimRight(base, "/"), g.ID())
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encode failed"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", png)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	token, err := s.auth.Login(req.Username, req.Password, extractIP(c.Request))
	switch {
	case errors.Is(err, ErrLoginRate):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrAdminDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// requireAdmin accepts "Authorization: Bearer <token>"
func (s *Server) requireAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	sub, err := s.auth.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(adminSubjectKey, sub)
	c.Next()
}

func (s *Server) handleAdminGame(c *gin.Context) {
	g, ok := s.gameParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"game":      g.Info(),
		"map_ready": g.MapReady(),
		"finished":  g.Finished(),
		"metrics":   g.Metrics().Snapshot(),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	gameID, _ := strconv.Atoi(c.Query("game"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	limit = min(max(limit, 1), maxEventsLimit)

	events, err := s.db.RecentEvents(gameID, limit)
	if err != nil {
		s.log.Error("journal query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	if events == nil {
		events = []JournalEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// accessLog writes one line per request
func accessLog(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

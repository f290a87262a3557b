package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trueinterview/pkg/interfaces"
	"trueinterview/pkg/types"
)

// Secret headers sent by the monitoring agent
const (
	HeaderSessionKey    = "X-Session-Key"
	HeaderSessionSecret = "X-Session-Secret"
)

// MaxMetricsBody bounds a side-channel metrics report
const MaxMetricsBody = 1 << 20

// Gateway is the slice of the session gateway the side channel needs
type Gateway interface {
	Authorize(roomID, secret string) error
	RoomStatus(roomID string) (types.RoomStatus, error)
	GetStats() map[string]int
}

// MetricsRouter ingests and serves metrics with the same semantics as the socket events
type MetricsRouter interface {
	IngestMetrics(roomID string, raw []byte) error
	MetricsReply(roomID string) (interface{}, error)
	GetStats() map[string]int
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	gateway  Gateway
	metrics  MetricsRouter
	archive  interfaces.ArchiveReader
	registry Registry
	engine   *gin.Engine
	started  time.Time
}

// NewServer wires the gin engine. archive may be nil when the archive is disabled;
// ws may be nil when the socket endpoint is mounted elsewhere.
func NewServer(gateway Gateway, metrics MetricsRouter, archive interfaces.ArchiveReader, registry Registry, ws http.HandlerFunc) *Server {
	s := &Server{
		gateway:  gateway,
		metrics:  metrics,
		archive:  archive,
		registry: registry,
		engine:   gin.New(),
		started:  time.Now(),
	}

	s.setupRoutes(ws)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware;
// room-scoped routes sit behind the session secret gate
func (s *Server) setupRoutes(ws http.HandlerFunc) {
	s.engine.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	secured := s.engine.Group("", s.requireSessionKey())
	secured.POST("/send_processes/:roomId", s.sendProcesses)
	secured.GET("/room-status/:roomId", s.roomStatus)
	secured.GET("/api/rooms/:roomId/metrics", s.roomMetrics)

	s.engine.GET("/api/rooms/history", s.listHistory)
	s.engine.GET("/api/rooms/history/:roomId", s.getHistory)
	s.engine.GET("/health", s.healthCheck)

	if ws != nil {
		s.engine.GET("/ws", gin.WrapF(ws))
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HealthResponse reports coordinator, transport and archive state
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Database    string         `json:"database"`
	Rooms       map[string]int `json:"rooms"`
	Connections map[string]int `json:"connections"`
	Router      map[string]int `json:"router"`
	Archive     map[string]int `json:"archive,omitempty"`
}

// requireSessionKey resolves :roomId and checks the room secret header
// FUNCTIONAL DISCOVERY: the monitoring agent sends X-Session-Key; X-Session-Secret is accepted as an alias
func (s *Server) requireSessionKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		secret := c.GetHeader(HeaderSessionKey)
		if secret == "" {
			secret = c.GetHeader(HeaderSessionSecret)
		}

		switch err := s.gateway.Authorize(roomID, secret); {
		case err == nil:
			c.Next()
		case errors.Is(err, interfaces.ErrRoomNotFound):
			abortWithError(c, http.StatusNotFound, msgRoomNotFound)
		case errors.Is(err, interfaces.ErrUnauthorized):
			logrus.WithField("room_id", roomID).Warn("Side channel request with invalid session key")
			abortWithError(c, http.StatusForbidden, msgInvalidSessionKey)
		default:
			logrus.WithError(err).WithField("room_id", roomID).Error("Session key check failed")
			abortWithError(c, http.StatusInternalServerError, msgInternal)
		}
	}
}

// POST /send_processes/:roomId - same semantics as handle-metrics
func (s *Server) sendProcesses(c *gin.Context) {
	roomID := c.Param("roomId")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxMetricsBody))
	if err != nil || !json.Valid(body) {
		abortWithError(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := s.metrics.IngestMetrics(roomID, body); err != nil {
		s.respondRoomError(c, roomID, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"bytes":   len(body),
	}).Debug("Metrics received over HTTP")
	c.JSON(http.StatusOK, gin.H{"message": msgMetricsAccepted})
}

// GET /room-status/:roomId - polled by the monitoring agent
func (s *Server) roomStatus(c *gin.Context) {
	status, err := s.gateway.RoomStatus(c.Param("roomId"))
	if err != nil {
		s.respondRoomError(c, c.Param("roomId"), err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/rooms/:roomId/metrics - same semantics as request-metrics
func (s *Server) roomMetrics(c *gin.Context) {
	roomID := c.Param("roomId")
	reply, err := s.metrics.MetricsReply(roomID)
	if err != nil {
		s.respondRoomError(c, roomID, err)
		return
	}
	c.JSON(http.StatusOK, &types.ProcessUpdate{RoomID: roomID, Data: reply})
}

// GET /api/rooms/history?limit=N - newest archived rooms first
func (s *Server) listHistory(c *gin.Context) {
	if s.archive == nil {
		abortWithError(c, http.StatusServiceUnavailable, msgArchiveDisabled)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, msgInvalidLimit)
			return
		}
		limit = n
	}

	records, err := s.archive.ListRoomRecords(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list archived rooms")
		abortWithError(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": records})
}

// GET /api/rooms/history/:roomId - newest archived record of one room
func (s *Server) getHistory(c *gin.Context) {
	if s.archive == nil {
		abortWithError(c, http.StatusServiceUnavailable, msgArchiveDisabled)
		return
	}

	roomID := c.Param("roomId")
	record, err := s.archive.GetRoomRecord(c.Request.Context(), roomID)
	switch {
	case errors.Is(err, interfaces.ErrRecordNotFound):
		abortWithError(c, http.StatusNotFound, msgRecordNotFound)
	case err != nil:
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to read archived room")
		abortWithError(c, http.StatusInternalServerError, msgInternal)
	default:
		c.JSON(http.StatusOK, record)
	}
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "disabled"
	if s.archive != nil {
		dbStatus = "healthy"
		if err := s.archive.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = "error: " + err.Error()
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Database:    dbStatus,
		Rooms:       s.gateway.GetStats(),
		Connections: s.registry.GetStats(),
		Router:      s.metrics.GetStats(),
	}
	if s.archive != nil {
		response.Archive = s.archive.GetStats()
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

func (s *Server) respondRoomError(c *gin.Context, roomID string, err error) {
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		abortWithError(c, http.StatusNotFound, msgRoomNotFound)
		return
	}
	logrus.WithError(err).WithField("room_id", roomID).Error("Side channel request failed")
	abortWithError(c, http.StatusInternalServerError, msgInternal)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

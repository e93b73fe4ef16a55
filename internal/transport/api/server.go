package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lootdogs.ai/internal/app"
	"lootdogs.ai/internal/protocol"
)

const requestTimeout = 5 * time.Second

// Server exposes the game over REST under /api/v1.
type Server struct {
	rt  *app.Runtime
	log *log.Logger
}

func NewServer(rt *app.Runtime, logger *log.Logger) *Server {
	return &Server{rt: rt, log: logger}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), noCache)

	r.Any("/api/v1/maps", only(s.listMaps, http.MethodGet, http.MethodHead))
	r.Any("/api/v1/maps/:id", only(s.getMap, http.MethodGet, http.MethodHead))
	r.Any("/api/v1/game/join", only(s.join, http.MethodPost))
	r.Any("/api/v1/game/players", only(s.players, http.MethodGet, http.MethodHead))
	r.Any("/api/v1/game/state", only(s.state, http.MethodGet, http.MethodHead))
	r.Any("/api/v1/game/player/action", only(s.action, http.MethodPost))
	r.Any("/api/v1/game/tick", only(s.tick, http.MethodPost))
	r.Any("/api/v1/game/records", only(s.records, http.MethodGet, http.MethodHead))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			fail(c, http.StatusBadRequest, protocol.ErrBadRequest, "Bad request")
			return
		}
		c.Status(http.StatusNotFound)
	})
	return r
}

func noCache(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Next()
}

// only rejects every method not listed with 405 and an Allow header.
func only(h gin.HandlerFunc, methods ...string) gin.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(c *gin.Context) {
		for _, m := range methods {
			if c.Request.Method == m {
				h(c)
				return
			}
		}
		c.Header("Allow", allow)
		fail(c, http.StatusMethodNotAllowed, protocol.ErrInvalidMethod, "Only "+allow+" method is expected")
	}
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Code: code, Message: msg})
}

func reqCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// failRuntime maps runtime errors onto status codes.
func (s *Server) failRuntime(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidToken):
		fail(c, http.StatusUnauthorized, protocol.ErrInvalidToken, "Authorization header is missing")
	case errors.Is(err, app.ErrUnknownToken):
		fail(c, http.StatusUnauthorized, protocol.ErrUnknownToken, "Player token has not been found")
	case errors.Is(err, app.ErrMapNotFound):
		fail(c, http.StatusNotFound, protocol.ErrMapNotFound, "Map not found")
	case errors.Is(err, app.ErrInvalidName):
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Invalid name")
	case errors.Is(err, app.ErrInvalidMove):
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Failed to parse action")
	case errors.Is(err, app.ErrInvalidDelta):
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Failed to parse tick request JSON")
	case errors.Is(err, app.ErrManualTickDisabled):
		fail(c, http.StatusBadRequest, protocol.ErrBadRequest, "Invalid endpoint")
	case errors.Is(err, app.ErrTooManyItems), errors.Is(err, app.ErrInvalidRange):
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, err.Error())
	default:
		s.log.Printf("api %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

// authorized resolves the bearer token before calling next.
func (s *Server) authorized(c *gin.Context, next func(ctx context.Context, token string)) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	token, err := s.rt.Authorize(ctx, c.GetHeader("Authorization"))
	if err != nil {
		s.failRuntime(c, err)
		return
	}
	next(ctx, token)
}

func (s *Server) listMaps(c *gin.Context) {
	c.JSON(http.StatusOK, s.rt.Maps())
}

func (s *Server) getMap(c *gin.Context) {
	def, err := s.rt.Map(c.Param("id"))
	if err != nil {
		s.failRuntime(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) join(c *gin.Context) {
	var req protocol.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserName == nil || req.MapID == nil {
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Join game request parse error")
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	token, id, err := s.rt.Join(ctx, *req.UserName, *req.MapID)
	if err != nil {
		s.failRuntime(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.JoinResponse{AuthToken: token, PlayerID: id})
}

func (s *Server) players(c *gin.Context) {
	s.authorized(c, func(ctx context.Context, token string) {
		names, err := s.rt.Players(ctx, token)
		if err != nil {
			s.failRuntime(c, err)
			return
		}
		out := make(protocol.PlayersResponse, len(names))
		for id, name := range names {
			out[strconv.FormatUint(id, 10)] = protocol.PlayerInfo{Name: name}
		}
		c.JSON(http.StatusOK, out)
	})
}

func (s *Server) state(c *gin.Context) {
	s.authorized(c, func(ctx context.Context, token string) {
		st, err := s.rt.State(ctx, token)
		if err != nil {
			s.failRuntime(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})
}

func (s *Server) action(c *gin.Context) {
	if c.ContentType() != "application/json" {
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Invalid content type")
		return
	}
	s.authorized(c, func(ctx context.Context, token string) {
		var req protocol.ActionRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Move == nil {
			fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Failed to parse action")
			return
		}
		if err := s.rt.Move(ctx, token, *req.Move); err != nil {
			s.failRuntime(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	})
}

func (s *Server) tick(c *gin.Context) {
	if s.rt.AutoTick() {
		s.failRuntime(c, app.ErrManualTickDisabled)
		return
	}
	var req protocol.TickRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TimeDelta == nil {
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Failed to parse tick request JSON")
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := s.rt.Tick(ctx, time.Duration(*req.TimeDelta)*time.Millisecond); err != nil {
		s.failRuntime(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) records(c *gin.Context) {
	start, err1 := queryInt(c, "start", 0)
	maxItems, err2 := queryInt(c, "maxItems", app.MaxRecordItems)
	if err1 != nil || err2 != nil {
		fail(c, http.StatusBadRequest, protocol.ErrInvalidArgument, "Invalid query parameters")
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	recs, err := s.rt.Records(ctx, start, maxItems)
	if err != nil {
		s.failRuntime(c, err)
		return
	}
	out := make([]protocol.RecordView, 0, len(recs))
	for _, r := range recs {
		out = append(out, protocol.RecordView{Name: r.Name, Score: r.Score, PlayTime: r.PlayTime.Seconds()})
	}
	c.JSON(http.StatusOK, out)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	return strconv.Atoi(v)
}

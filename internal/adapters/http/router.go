package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/adapters/signal"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// DeviceTokenMiddleware pins a long-lived cookie per browser instance. The
// resume tracker keys its short-window markers by this value to ride out
// page-refresh races.
func DeviceTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("dt")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("dt", token, 3600*24*365, "/", "", false, true)
		}
		c.Set("device_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.Controller, rooms core.RoomDirectory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatterSessions", store))
	r.Use(DeviceTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("device", c.GetString("device_token")).Msg("ws endpoint hit")
		ctrl.HandleWS(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		list, err := rooms.ActiveRooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "room directory unavailable"})
			return
		}
		type roomInfo struct {
			ID   domain.RoomID   `json:"id"`
			Name domain.RoomName `json:"name"`
		}
		out := make([]roomInfo, 0, len(list))
		for _, room := range list {
			out = append(out, roomInfo{ID: room.ID, Name: room.Name})
		}
		c.JSON(http.StatusOK, out)
	})

	return r
}

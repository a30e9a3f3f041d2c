package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/hzi-braunschweig/pia-notification-service/internal/api/handlers/notification"
)

func New(handler *notification.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api")
	{
		api.POST("/notification", handler.Create)
		api.GET("/notification/:id", handler.Get)
		api.POST("/email", handler.Email)
		api.POST("/fcm-token", handler.RegisterToken)
		api.DELETE("/fcm-token/:token", handler.RemoveToken)
	}

	return e
}

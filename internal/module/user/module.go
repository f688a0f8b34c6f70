package user

import "github.com/gin-gonic/gin"

// UserModule mounts the user routes. It satisfies app.Module.
type UserModule struct {
	h *UserHandler
}

// NewModule panics on a nil handler; wiring errors surface at startup.
func NewModule(h *UserHandler) *UserModule {
	if h == nil {
		panic("user: nil handler")
	}
	return &UserModule{h: h}
}

func (m *UserModule) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group("/users")
	g.POST("", m.h.Create)
	g.GET("", m.h.List)
	g.DELETE("", m.h.DeleteMany)
	g.GET("/page", m.h.Browse)
	g.PUT("/by-name/:name", m.h.UpdateByName)
	g.GET("/:id", m.h.Get)
	g.PUT("/:id", m.h.Update)
	g.DELETE("/:id", m.h.Delete)
}

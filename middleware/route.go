package middleware

import (
	"github.com/gin-gonic/gin"
)

type RouteOpt struct {
	// Auth, when set, runs before the handler.
	Auth gin.HandlerFunc
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Auth != nil {
		r.POST(path, opt.Auth, handler)
		return
	}
	r.POST(path, handler)
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Auth != nil {
		r.GET(path, opt.Auth, handler)
		return
	}
	r.GET(path, handler)
}

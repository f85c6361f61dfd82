package collector

import (
	"github.com/gin-gonic/gin"
	"github.com/jom-io/gorig-telemetry/src/mid"
)

// Router serves s:
//
//	POST   /v1/collect      submit a payload (bearer token)
//	GET    /v1/submissions  list stored payloads
//	DELETE /v1/submissions  drop stored payloads
//	GET    /status          forced status and submission count
//	POST   /status          force a response status, {"status": 503}
func Router(s *Serv) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("v1")
	v1.GET("submissions", s.List)
	v1.DELETE("submissions", s.Clear)

	collect := v1.Group("")
	collect.Use(mid.Sign(s.Accepts))
	collect.POST("collect", s.Collect)

	r.GET("status", s.Status)
	r.POST("status", s.SetStatus)
	return r
}

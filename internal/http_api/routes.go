package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)

	if s.deps.Jobs != nil {
		cron := s.router.Group("/api/cron", cronAuth(s.deps.CronSecret))
		cron.GET("/:job", s.runJob)
		cron.POST("/:job", s.runJob)
	}
	if s.deps.Webhooks != nil {
		s.router.POST("/webhooks/fanvue", s.fanvueWebhook)
	}
	if s.deps.Connector != nil {
		s.router.GET("/oauth/fanvue/connect", s.connect)
		s.router.GET("/oauth/fanvue/callback", s.callback)
	}
}

package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/regime", s.handleGetRegime)
		v1.GET("/daily", s.handleGetDaily)
		v1.GET("/lessons", s.handleGetLessons)

		signals := v1.Group("/signals")
		{
			signals.GET("/recent", s.handleGetRecentSignals)
			signals.GET("/pending", s.handleGetPendingSignals)
		}
	}

	// Load balancer health check
	s.router.GET("/healthz", s.handleHealthz)

	// Root endpoint
	s.router.GET("/", s.handleRoot)
}

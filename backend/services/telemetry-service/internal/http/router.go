package httpserver

import "net/http"

// Routes defines HTTP endpoints. Nil handlers are not registered.
type Routes struct {
	Health  http.HandlerFunc
	Metrics http.Handler
	Devices DeviceRoutes
	Gateway http.Handler
}

// DeviceRoutes are the device REST endpoints.
type DeviceRoutes struct {
	List      http.HandlerFunc
	Register  http.HandlerFunc
	Get       http.HandlerFunc
	Heartbeat http.HandlerFunc
	SetStatus http.HandlerFunc
	Voltage   http.HandlerFunc
	Logs      http.HandlerFunc
	Series    http.HandlerFunc
	Summary   http.HandlerFunc
}

// NewRouter sets up HTTP routing. Unsupported methods on a known path get 405 from the mux.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler http.Handler) {
		if handler != nil {
			mux.Handle(pattern, handler)
		}
	}
	handleFunc := func(pattern string, handler http.HandlerFunc) {
		if handler != nil {
			mux.Handle(pattern, handler)
		}
	}

	handleFunc("GET /health", routes.Health)
	handle("GET /metrics", routes.Metrics)
	handle("GET /ws/devices", routes.Gateway)

	d := routes.Devices
	handleFunc("GET /api/devices", d.List)
	handleFunc("POST /api/devices", d.Register)
	handleFunc("GET /api/devices/{id}", d.Get)
	handleFunc("PUT /api/devices/{id}/status", d.Heartbeat)
	handleFunc("PATCH /api/devices/{id}/status", d.SetStatus)
	handleFunc("POST /api/devices/{id}/voltage", d.Voltage)
	handleFunc("GET /api/devices/{id}/logs", d.Logs)
	handleFunc("GET /api/devices/{id}/series", d.Series)
	handleFunc("GET /api/devices/{id}/summary", d.Summary)
	return mux
}

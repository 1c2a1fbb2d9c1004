package health

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Service names reported by the server.
const (
	ServiceSessions = "heartrhythm.v1.Sessions"
	ServiceRedis    = "redis"
	ServicePostgres = "postgres"
	ServiceNATS     = "nats"
)

type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	mu       sync.RWMutex
	services map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	watchers map[string][]chan grpc_health_v1.HealthCheckResponse_ServingStatus
}

func NewHealthServer() *HealthServer {
	return &HealthServer{
		services: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
		watchers: make(map[string][]chan grpc_health_v1.HealthCheckResponse_ServingStatus),
	}
}

func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	service := req.GetService()

	servingStatus, exists := h.services[service]
	if !exists {
		if service == "" {
			return &grpc_health_v1.HealthCheckResponse{
				Status: grpc_health_v1.HealthCheckResponse_SERVING,
			}, nil
		}
		return nil, status.Error(codes.NotFound, "service not found")
	}

	return &grpc_health_v1.HealthCheckResponse{
		Status: servingStatus,
	}, nil
}

// Watch sends the current status and then every change until the stream ends.
// Unknown services report SERVICE_UNKNOWN instead of failing.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()
	updates := make(chan grpc_health_v1.HealthCheckResponse_ServingStatus, 4)

	h.mu.Lock()
	current, exists := h.services[service]
	if !exists {
		current = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
		if service == "" {
			current = grpc_health_v1.HealthCheckResponse_SERVING
		}
	}
	h.watchers[service] = append(h.watchers[service], updates)
	h.mu.Unlock()
	defer h.removeWatcher(service, updates)

	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
		return err
	}

	last := current
	for {
		select {
		case st := <-updates:
			if st == last {
				continue
			}
			last = st
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (h *HealthServer) SetServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) SetNotServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every known service as not serving.
func (h *HealthServer) Shutdown() {
	h.mu.RLock()
	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	h.mu.RUnlock()
	for _, name := range names {
		h.SetNotServingStatus(name)
	}
}

func (h *HealthServer) setStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[service] = status
	for _, ch := range h.watchers[service] {
		select {
		case ch <- status:
		default:
			// watcher is behind; it still sees the latest on the next change
		}
	}
}

func (h *HealthServer) removeWatcher(service string, ch chan grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.watchers[service]
	for i, c := range list {
		if c == ch {
			h.watchers[service] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.watchers[service]) == 0 {
		delete(h.watchers, service)
	}
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Monitor runs probe every interval and mirrors the result into the status of
// service until ctx is done.
func (h *HealthServer) Monitor(ctx context.Context, service string, interval time.Duration, probe Probe) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := probe(pctx); err != nil {
			if h.serving(service) {
				log.Printf("[WARN] Health probe %s failed: %v", service, err)
			}
			h.SetNotServingStatus(service)
			return
		}
		if !h.serving(service) {
			log.Printf("[INFO] Health probe %s recovered", service)
		}
		h.SetServingStatus(service)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

func (h *HealthServer) serving(service string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.services[service] == grpc_health_v1.HealthCheckResponse_SERVING
}

package health

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterGRPC exposes the standard grpc health service on server. Its
// serving status follows the checker: NOT_SERVING whenever a critical
// component is down. Replaces any previous OnChange callback.
func (c *Checker) RegisterGRPC(server grpc.ServiceRegistrar, service string) *grpchealth.Server {
	hs := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)

	set := func(healthy bool) {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if !healthy {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(service, status)
	}
	set(c.IsSystemHealthy())
	c.OnChange(set)
	return hs
}

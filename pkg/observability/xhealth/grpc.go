package xhealth

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCReporter 把检查结果发布到 gRPC 健康服务。
//
// 每个检查名作为一个 service 名称发布，空 service 名 "" 表示整体状态，
// 只有全部检查健康时才为 SERVING。
type GRPCReporter struct {
	server *health.Server
}

// NewGRPCReporter 创建 reporter。
func NewGRPCReporter(server *health.Server) *GRPCReporter {
	return &GRPCReporter{server: server}
}

// Publish 发布一轮结果，可直接作为 Listener 使用。
func (r *GRPCReporter) Publish(results map[string]Result) {
	for name, res := range results {
		r.server.SetServingStatus(name, servingStatus(res.IsHealthy()))
	}
	r.server.SetServingStatus("", servingStatus(AllHealthy(results)))
}

func servingStatus(healthy bool) healthpb.HealthCheckResponse_ServingStatus {
	if healthy {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

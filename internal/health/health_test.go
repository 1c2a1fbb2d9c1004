package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialHealth(t *testing.T, hs *HealthServer) grpc_health_v1.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func TestCheck(t *testing.T) {
	hs := NewHealthServer()
	client := dialHealth(t, hs)
	ctx := context.Background()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceRedis})
	assert.Equal(t, codes.NotFound, status.Code(err))

	hs.SetNotServingStatus(ServiceRedis)
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceRedis})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestWatchStreamsChanges(t *testing.T) {
	hs := NewHealthServer()
	hs.SetServingStatus(ServiceSessions)
	client := dialHealth(t, hs)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceSessions})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	require.Eventually(t, func() bool {
		hs.mu.RLock()
		defer hs.mu.RUnlock()
		return len(hs.watchers[ServiceSessions]) == 1
	}, time.Second, 5*time.Millisecond)

	hs.Shutdown()
	resp, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestMonitorFollowsProbe(t *testing.T) {
	hs := NewHealthServer()
	var failing atomic.Bool
	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Monitor(ctx, ServiceNATS, 10*time.Millisecond, probe)

	require.Eventually(t, func() bool { return hs.serving(ServiceNATS) }, time.Second, 5*time.Millisecond)
	failing.Store(true)
	require.Eventually(t, func() bool { return !hs.serving(ServiceNATS) }, time.Second, 5*time.Millisecond)
	failing.Store(false)
	require.Eventually(t, func() bool { return hs.serving(ServiceNATS) }, time.Second, 5*time.Millisecond)
}

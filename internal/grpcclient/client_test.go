package grpcclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"tracker-svr/internal/dispatcher"
	"tracker-svr/internal/filter"
	"tracker-svr/internal/model"
)

type capture struct {
	mu      sync.Mutex
	method  string
	request *structpb.Struct
	success bool
}

func startForwarder(t *testing.T, success bool) (*GRPCClient, *capture) {
	t.Helper()
	c := &capture{success: success}
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		c.mu.Lock()
		c.method, c.request = method, req
		c.mu.Unlock()

		res, _ := structpb.NewStruct(map[string]any{"success": c.success})
		return stream.SendMsg(res)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, c
}

func delivery() dispatcher.Delivery {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return dispatcher.Delivery{
		Position: model.Position{DeviceID: 7, Protocol: "tk103", Time: at, StartTime: at, Latitude: 28.4, Longitude: 77},
		Device:   model.Device{ID: 7, IMEI: "027044702512", ExternalID: "ext-7"},
		Outcome:  filter.Accepted,
	}
}

func TestDeliverInvokesSendData(t *testing.T) {
	client, c := startForwarder(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Deliver(ctx, delivery()))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, sendDataMethod, c.method)
	fields := c.request.GetFields()
	assert.Equal(t, "027044702512", fields["device_id"].GetStringValue())
	pl := fields["payload"].GetStructValue().GetFields()
	assert.Equal(t, 28.4, pl["lat"].GetNumberValue())
	assert.Equal(t, "2024-05-01T10:00:00Z", pl["dt"].GetStringValue())
	assert.Equal(t, "ext-7", pl["external_id"].GetStringValue())
	assert.False(t, pl["merged"].GetBoolValue())
}

func TestRejectedDataIsAnError(t *testing.T) {
	client, _ := startForwarder(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Deliver(ctx, delivery())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

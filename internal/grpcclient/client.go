package grpcclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"tracker-svr/internal/dispatcher"
)

// Método del servicio Forwarder. Request y response viajan como
// google.protobuf.Struct para no depender de stubs generados.
const sendDataMethod = "/forwarder.Forwarder/SendData"

type GRPCClient struct {
	conn *grpc.ClientConn
}

func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

func (g *GRPCClient) Close() {
	_ = g.conn.Close()
}

// SendData envía el payload de un dispositivo. Un success=false del servidor es error.
func (g *GRPCClient) SendData(ctx context.Context, deviceID string, payload map[string]any) error {
	req, err := structpb.NewStruct(map[string]any{
		"device_id": deviceID,
		"payload":   payload,
	})
	if err != nil {
		return fmt.Errorf("forwarder: build request: %w", err)
	}

	res := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, sendDataMethod, req, res); err != nil {
		return fmt.Errorf("forwarder: send %s: %w", deviceID, err)
	}
	if !res.GetFields()["success"].GetBoolValue() {
		return fmt.Errorf("forwarder: server rejected data for device %s", deviceID)
	}
	return nil
}

func (g *GRPCClient) Name() string { return "forwarder" }

func (g *GRPCClient) Deliver(ctx context.Context, d dispatcher.Delivery) error {
	return g.SendData(ctx, d.Device.IMEI, payload(d))
}

func payload(d dispatcher.Delivery) map[string]any {
	p := d.Position
	out := map[string]any{
		"id":       strconv.FormatInt(p.DeviceID, 10),
		"protocol": p.Protocol,
		"dt":       p.Time.UTC().Format(time.RFC3339),
		"start":    p.StartTime.UTC().Format(time.RFC3339),
		"lat":      p.Latitude,
		"lon":      p.Longitude,
		"alt":      p.Altitude,
		"spd":      p.Speed,
		"crs":      p.Course,
		"valid":    p.Valid,
		"merged":   d.Merged(),
		"ext":      p.ExtendedInfo,
	}
	if d.Device.ExternalID != "" {
		out["external_id"] = d.Device.ExternalID
	}
	return out
}

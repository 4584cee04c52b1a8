package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSetup_NoEndpoint_ReturnsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "projecify"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown should not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSetup_WithEndpoint_ShutsDown(t *testing.T) {
	// gRPC接続は遅延して張られるため、コレクター不在でも生成は成功する
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "projecify-test",
		Endpoint:    "127.0.0.1:4317",
		Insecure:    true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

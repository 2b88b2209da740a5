package grpcx

import (
	"context"
	"testing"
	"time"

	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestRequestIDInterceptorForwardsHTTPRequestID(t *testing.T) {
	ctx := httpx.ContextWithRequestID(context.Background(), "req-42")

	var got string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
			got = vals[0]
		}
		return nil
	}
	if err := UnaryClientRequestIDInterceptor()(ctx, "/calendar.v1.CalendarSync/UpsertEvent", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor failed: %v", err)
	}
	if got != "req-42" {
		t.Fatalf("expected req-42 in metadata, got %q", got)
	}
}

func TestTimeoutInterceptorAddsDeadline(t *testing.T) {
	var hadDeadline bool
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}
	if err := UnaryClientTimeoutInterceptor(time.Second)(context.Background(), "/x", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor failed: %v", err)
	}
	if !hadDeadline {
		t.Fatal("expected deadline to be set")
	}
}

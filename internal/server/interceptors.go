package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "x-request-id"

// UnaryRequestID reuses the caller's x-request-id or assigns a new one, echoes it
// in the response header and stores a request-scoped logger in the context.
func UnaryRequestID(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				reqID = strings.TrimSpace(vals[0])
			}
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID))

		ctx = common.WithRequestID(ctx, reqID)
		ctx = common.WithLogger(ctx, logger.With("req_id", reqID))
		return handler(ctx, req)
	}
}

// UnaryLogging logs every call with its status code and duration.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		l := common.LoggerFromContext(ctx, logger)
		code := status.Code(err)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			l.Warn("rpc failed", append(attrs, "error", err)...)
		} else {
			l.Info("rpc completed", attrs...)
		}
		return resp, err
	}
}

// UnaryRecovery turns a handler panic into an Internal status.
func UnaryRecovery(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				common.LoggerFromContext(ctx, logger).Error("rpc panicked", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryInterceptors is the interceptor chain every server uses, outermost first.
func UnaryInterceptors(logger *slog.Logger) []grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return []grpc.UnaryServerInterceptor{
		UnaryRequestID(logger),
		UnaryLogging(logger),
		UnaryRecovery(logger),
	}
}

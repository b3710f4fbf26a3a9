package grpc

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapgrpc"
	"google.golang.org/grpc/grpclog"
)

// UseZapLogger routes grpc-go's internal logging through l. Call it before
// any server or client is created.
func UseZapLogger(l *zap.Logger) {
	grpclog.SetLoggerV2(newGRPCLogger(l))
}

// grpc-go logs connection churn at info level; only warnings and up are kept.
func newGRPCLogger(l *zap.Logger) grpclog.LoggerV2 {
	return zapgrpc.NewLogger(l.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)).With(zap.String("component", "grpc")))
}

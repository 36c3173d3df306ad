package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLogUnary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	intercept := logUnary(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/policy.v1.PolicyService/SampleActions"}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = intercept(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "model not loaded")
	})
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "rpc", entries[0].Message)
	assert.Equal(t, "OK", entries[0].ContextMap()["code"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "NotFound", entries[1].ContextMap()["code"])
	assert.Equal(t, info.FullMethod, entries[1].ContextMap()["method"])
}

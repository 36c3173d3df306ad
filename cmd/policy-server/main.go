package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// #region main
type args struct {
	Listen    string    `arg:"--listen,env:POLICY_LISTEN" default:":50061" help:"listen address"`
	ActionDim int       `arg:"--action-dim" default:"7" help:"dimension of predicted actions"`
	Horizon   int       `arg:"--horizon" default:"4" help:"length of predicted action chunks"`
	Hold      []float32 `arg:"--hold" help:"action to predict at every step; zeros when empty"`
}

func (args) Description() string {
	return "serve a constant-action baseline policy over gRPC"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if a.ActionDim < 1 || a.Horizon < 1 {
		p.Fail("--action-dim and --horizon must be positive")
	}
	if len(a.Hold) > 0 && len(a.Hold) != a.ActionDim {
		p.Fail(fmt.Sprintf("--hold has %d values, --action-dim is %d", len(a.Hold), a.ActionDim))
	}

	logger := newLogger()
	defer logger.Sync()

	hold := policy.NewHoldPolicy(a.ActionDim, a.Horizon)
	hold.Action = a.Hold

	lis, err := net.Listen("tcp", a.Listen)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", a.Listen), zap.Error(err))
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(logUnary(logger)))
	policy.RegisterPolicyServiceServer(srv, hold)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info("shutting down", zap.String("signal", sig.String()))
		srv.GracefulStop()
	}()

	logger.Info("hold policy serving",
		zap.String("addr", lis.Addr().String()),
		zap.Int("action_dim", a.ActionDim),
		zap.Int("horizon", a.Horizon),
		zap.Float32s("hold", a.Hold),
	)
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

// #endregion main

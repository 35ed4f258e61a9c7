package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

type nodeStartKey struct{}

// NewNodeCallbacks records the duration of every graph node.
func NewNodeCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if !isNode(info) {
				return ctx
			}
			return context.WithValue(ctx, nodeStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			observeNode(ctx, info, nil)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			observeNode(ctx, info, err)
			return ctx
		}).
		Build()
}

func isNode(info *einocb.RunInfo) bool {
	return info != nil && info.Component == compose.ComponentOfLambda
}

func observeNode(ctx context.Context, info *einocb.RunInfo, err error) {
	if !isNode(info) {
		return
	}
	start, ok := ctx.Value(nodeStartKey{}).(time.Time)
	if !ok {
		return
	}
	d := time.Since(start)
	metrics.NodeDuration.WithLabelValues(info.Name).Observe(d.Seconds())

	ev := logx.Debug()
	if err != nil {
		ev = logx.Warn().Err(err)
	}
	ev.Str("node", info.Name).Dur("duration", d).Msg("Node finished")
}

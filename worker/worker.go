// Package worker is the client side of the worker protocol. An external
// worker polls one channel over gRPC, runs each job through a Handler and
// reports the outcome back.
package worker

import (
	"context"
	"time"

	"github.com/mohitkumar/mediaflow/model"
	"google.golang.org/grpc"
)

// Handler runs one job. A returned error fails the attempt; the server
// decides whether it is retried.
type Handler func(ctx context.Context, msg *model.DispatchMessage) (map[string]any, error)

type Config struct {
	ServerUrl           string
	Channel             string
	BatchSize           int
	PollInterval        time.Duration
	MaxReportRetries    int
	ReportRetryInterval time.Duration
	DialOptions         []grpc.DialOption
}

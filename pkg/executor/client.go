package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/types"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Default outbound throttle for the gRPC transport: a per-process limiter
// on top of the core's own per-loop ratelimit.Bucket (spec §4.1), pacing
// real network calls against the executor manager rather than gating
// loop-iteration work.
const (
	DefaultRPCRate  = 20.0
	DefaultRPCBurst = 50
)

// grpcManager is the production Manager: a single gRPC connection to the
// executor manager, invoked without generated protobuf stubs via the
// package's JSON codec (codec.go), following the teacher's
// pkg/client/client.go dial pattern (insecure by default, TLS when a
// *tls.Config is supplied).
type grpcManager struct {
	conn    *grpc.ClientConn
	limiter *rate.Limiter
}

// Dial connects to the executor manager at addr. tlsConfig may be nil for
// an insecure (plaintext) connection, matching the teacher's fallback
// when no certificate material is configured.
func Dial(addr string, tlsConfig *tls.Config) (Manager, error) {
	var creds credentials.TransportCredentials
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial executor manager %s: %w", addr, err)
	}

	return &grpcManager{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(DefaultRPCRate), DefaultRPCBurst),
	}, nil
}

type clientsResponse struct {
	Executors []executorWire `json:"executors"`
}

type executorWire struct {
	Name       string          `json:"name"`
	Host       string          `json:"host"`
	Domain     string          `json:"domain"`
	Tags       []string        `json:"tags"`
	Containers []types.Container `json:"containers"`
}

func (m *grpcManager) Clients(ctx context.Context) ([]types.Executor, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var resp clientsResponse
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Clients", &struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]types.Executor, len(resp.Executors))
	for i, w := range resp.Executors {
		out[i] = types.NewExecutor(w.Name, w.Host, w.Domain, w.Tags, w.Containers)
	}
	return out, nil
}

type dispatchRequest struct {
	Instance     *types.Instance `json:"instance"`
	ExecutorName string          `json:"executor_name"`
}

func (m *grpcManager) Dispatch(ctx context.Context, inst *types.Instance, executorName string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	req := dispatchRequest{Instance: inst, ExecutorName: executorName}
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Dispatch", &req, &struct{}{}); err != nil {
		return &schederr.DispatchError{Instance: inst.Name, Executor: executorName, Err: err}
	}
	return nil
}

type waitRequest struct {
	InstanceName string        `json:"instance_name"`
	ExecutorName string        `json:"executor_name"`
	TimeoutMS    int64         `json:"timeout_ms"`
}

type waitResponse struct {
	State types.InstanceState `json:"state"`
}

func (m *grpcManager) Wait(ctx context.Context, instanceName, executorName string, timeout time.Duration) (types.InstanceState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := waitRequest{InstanceName: instanceName, ExecutorName: executorName, TimeoutMS: timeout.Milliseconds()}
	var resp waitResponse
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Wait", &req, &resp); err != nil {
		return "", &schederr.DispatchError{Instance: instanceName, Executor: executorName, Err: err}
	}
	return resp.State, nil
}

type containersRequest struct {
	InstanceNames []string `json:"instance_names"`
}

type containersResponse struct {
	Containers []*types.Container `json:"containers"`
}

func (m *grpcManager) Containers(ctx context.Context, instances []*types.Instance) ([]*types.Container, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name
	}
	req := containersRequest{InstanceNames: names}
	var resp containersResponse
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Containers", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Containers, nil
}

type actionRequest struct {
	InstanceName string `json:"instance_name"`
	ExecutorName string `json:"executor_name"`
}

func (m *grpcManager) Restart(ctx context.Context, instanceName, executorName string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	req := actionRequest{InstanceName: instanceName, ExecutorName: executorName}
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Restart", &req, &struct{}{}); err != nil {
		return &schederr.DispatchError{Instance: instanceName, Executor: executorName, Err: err}
	}
	return nil
}

func (m *grpcManager) Terminate(ctx context.Context, instanceName, executorName string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	req := actionRequest{InstanceName: instanceName, ExecutorName: executorName}
	if err := m.conn.Invoke(ctx, "/fleetsched.executor.Manager/Terminate", &req, &struct{}{}); err != nil {
		return &schederr.DispatchError{Instance: instanceName, Executor: executorName, Err: err}
	}
	return nil
}

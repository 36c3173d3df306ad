package policy

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/danielpatrickdp/policy-eval/internal/window"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrBadTaskSpec is returned when a TaskSpec sets neither or both of Goals and Texts.
var ErrBadTaskSpec = errors.New("task spec must set exactly one of goals or texts")

// #region client-struct
// Client wraps the gRPC connection to the policy inference server.
type Client struct {
	conn   *grpc.ClientConn
	client PolicyServiceClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to the policy inference gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewPolicyServiceClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
func NewClientWithService(svc PolicyServiceClient) *Client {
	return &Client{client: svc}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region load
// Model is a checkpoint loaded on the policy server.
type Model struct {
	ID            string
	Checkpoint    string
	ActionDim     int
	ActionHorizon int
	Statistics    map[string]ActionStatistics // dataset name -> action statistics

	client PolicyServiceClient
}

// LoadPretrained asks the server to load the checkpoint at path.
func (c *Client) LoadPretrained(ctx context.Context, path string) (*Model, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"checkpoint_path": path})
	if err != nil {
		return nil, fmt.Errorf("build load request: %w", err)
	}
	resp, err := c.client.Load(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("load rpc: %w", err)
	}

	fields := resp.GetFields()
	m := &Model{
		ID:            fields["model_id"].GetStringValue(),
		Checkpoint:    path,
		ActionDim:     int(fields["action_dim"].GetNumberValue()),
		ActionHorizon: int(fields["action_horizon"].GetNumberValue()),
		Statistics:    make(map[string]ActionStatistics),
		client:        c.client,
	}
	if m.ID == "" {
		return nil, fmt.Errorf("load %s: server returned no model id", path)
	}
	for name, v := range fields["dataset_statistics"].GetStructValue().GetFields() {
		action := v.GetStructValue().GetFields()["action"].GetStructValue().GetFields()
		m.Statistics[name] = ActionStatistics{
			Mean: floatList(action["mean"]),
			Std:  floatList(action["std"]),
			Mask: boolListOrNil(action["mask"]),
		}
	}
	return m, nil
}

func boolListOrNil(v *structpb.Value) []bool {
	if v == nil {
		return nil
	}
	return boolList(v)
}

// #endregion load

// #region create-tasks
// GoalsFromImage builds the goal map for goal-image conditioning.
func GoalsFromImage(img image.Image) (map[string]window.Tensor, error) {
	t, err := window.FromImages([]image.Image{img})
	if err != nil {
		return nil, fmt.Errorf("goal image: %w", err)
	}
	// drop the time axis: [1,1,H,W,3] -> [1,H,W,3]
	t.Shape = append([]int{1}, t.Shape[2:]...)
	return map[string]window.Tensor{"image_primary": t}, nil
}

// CreateTasks builds the conditioning record for goal images or language instructions.
func (m *Model) CreateTasks(ctx context.Context, spec TaskSpec) (*Task, error) {
	if (len(spec.Goals) == 0) == (len(spec.Texts) == 0) {
		return nil, ErrBadTaskSpec
	}

	body := map[string]interface{}{"model_id": m.ID}
	kind := "language"
	if len(spec.Goals) > 0 {
		kind = "goal"
		goals := make(map[string]interface{}, len(spec.Goals))
		for k, t := range spec.Goals {
			goals[k] = imageTensorValue(t)
		}
		body["goals"] = goals
	} else {
		texts := make([]interface{}, len(spec.Texts))
		for i, s := range spec.Texts {
			texts[i] = s
		}
		body["texts"] = texts
	}

	req, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("build create tasks request: %w", err)
	}
	resp, err := m.client.CreateTasks(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create tasks rpc: %w", err)
	}
	task := resp.GetFields()["task"].GetStructValue()
	if task == nil {
		return nil, fmt.Errorf("create tasks: server returned no task")
	}
	return &Task{Kind: kind, payload: task}, nil
}

// #endregion create-tasks

// #region sample-actions
// SampleActions runs the policy on one observation window and returns the
// predicted action chunk with the batch dimension removed: [horizon][dim].
func (m *Model) SampleActions(ctx context.Context, obs window.Observation, task *Task, opts SampleOptions) ([][]float32, error) {
	if task == nil {
		return nil, fmt.Errorf("sample actions: nil task")
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"model_id":    m.ID,
		"observation": observationValue(obs),
		"seed":        opts.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build sample request: %w", err)
	}
	req.Fields["task"] = structpb.NewStructValue(task.payload)

	resp, err := m.client.SampleActions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sample actions rpc: %w", err)
	}

	shape, data, err := DecodeFloatTensor(resp.GetFields()["actions"].GetStructValue())
	if err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("actions shape %v, want [1 horizon dim]", shape)
	}

	horizon, dim := shape[1], shape[2]
	out := make([][]float32, horizon)
	for h := 0; h < horizon; h++ {
		a := data[h*dim : (h+1)*dim]
		if opts.Unnormalize != nil {
			if a, err = opts.Unnormalize.Unnormalize(a); err != nil {
				return nil, fmt.Errorf("unnormalize: %w", err)
			}
		}
		out[h] = a
	}
	return out, nil
}

// #endregion sample-actions

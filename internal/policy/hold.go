package policy

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region hold-policy
// HoldPolicy is a baseline PolicyServiceServer that always predicts a
// constant action. It validates requests like a real server would, which
// makes it useful for smoke-testing the evaluator end to end.
type HoldPolicy struct {
	ActionDim     int
	ActionHorizon int
	Action        []float32 // held action; zeros when nil

	mu     sync.Mutex
	models map[string]string // model id -> checkpoint
}

// NewHoldPolicy returns a HoldPolicy predicting zeros.
func NewHoldPolicy(actionDim, horizon int) *HoldPolicy {
	return &HoldPolicy{
		ActionDim:     actionDim,
		ActionHorizon: horizon,
		models:        make(map[string]string),
	}
}

func (p *HoldPolicy) Load(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	path := in.GetFields()["checkpoint_path"].GetStringValue()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "checkpoint_path is required")
	}
	id := uuid.New().String()

	p.mu.Lock()
	if p.models == nil {
		p.models = make(map[string]string)
	}
	p.models[id] = path
	p.mu.Unlock()

	return structpb.NewStruct(map[string]interface{}{
		"model_id":       id,
		"action_dim":     p.ActionDim,
		"action_horizon": p.ActionHorizon,
	})
}

func (p *HoldPolicy) CreateTasks(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := p.checkModel(in); err != nil {
		return nil, err
	}
	fields := in.GetFields()
	task := map[string]interface{}{}
	switch {
	case fields["goals"] != nil:
		task["kind"] = "goal"
	case fields["texts"] != nil:
		texts := fields["texts"].GetListValue().GetValues()
		if len(texts) == 0 {
			return nil, status.Error(codes.InvalidArgument, "texts is empty")
		}
		task["kind"] = "language"
		task["text"] = texts[0].GetStringValue()
	default:
		return nil, status.Error(codes.InvalidArgument, "one of goals or texts is required")
	}
	return structpb.NewStruct(map[string]interface{}{"task": task})
}

func (p *HoldPolicy) SampleActions(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := p.checkModel(in); err != nil {
		return nil, err
	}
	fields := in.GetFields()
	if fields["task"].GetStructValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "task is required")
	}
	obs := fields["observation"].GetStructValue()
	prim, err := decodeImageTensor(obs.GetFields()["image_primary"].GetStructValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "image_primary: %v", err)
	}
	if len(prim.Shape) != 5 || prim.Shape[0] != 1 {
		return nil, status.Errorf(codes.InvalidArgument, "image_primary shape %v, want [1 T H W 3]", prim.Shape)
	}

	data := make([]float32, p.ActionHorizon*p.ActionDim)
	if len(p.Action) == p.ActionDim {
		for h := 0; h < p.ActionHorizon; h++ {
			copy(data[h*p.ActionDim:], p.Action)
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"actions": FloatTensorValue([]int{1, p.ActionHorizon, p.ActionDim}, data),
	})
}

func (p *HoldPolicy) checkModel(in *structpb.Struct) error {
	id := in.GetFields()["model_id"].GetStringValue()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.models[id]; !ok {
		return status.Errorf(codes.NotFound, "model %q not loaded", id)
	}
	return nil
}

// #endregion hold-policy

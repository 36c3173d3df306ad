package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/policy-eval/internal/episode"
	"github.com/danielpatrickdp/policy-eval/internal/eval"
	"github.com/danielpatrickdp/policy-eval/internal/policy"
	"github.com/danielpatrickdp/policy-eval/internal/replay"
	"github.com/danielpatrickdp/policy-eval/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// #region helpers

// writeEpisode writes a one-episode dataset whose step s has action [s, 0, 1].
func writeEpisode(t *testing.T, steps int) string {
	t.Helper()
	dir := t.TempDir()
	split := filepath.Join(dir, "train")
	require.NoError(t, os.MkdirAll(split, 0o755))

	info := map[string]interface{}{
		"name": "toy_kitchen", "version": "0.1.0", "action_dim": 3,
		"splits": map[string]int{"train": 1},
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_info.json"), data, 0o644))

	var stepsJSON []map[string]interface{}
	for s := 0; s < steps; s++ {
		img := fmt.Sprintf("s%d.png", s)
		wrist := fmt.Sprintf("s%d_wrist.png", s)
		writePNG(t, filepath.Join(split, img), 20, 20)
		writePNG(t, filepath.Join(split, wrist), 8, 8)
		step := map[string]interface{}{
			"observation": map[string]string{"image": img, "wrist_image": wrist},
			"action":      []float32{float32(s), 0, 1},
			"is_first":    s == 0,
			"is_last":     s == steps-1,
		}
		if s == 0 {
			step["language_instruction"] = "open the drawer"
		}
		stepsJSON = append(stepsJSON, step)
	}
	data, err = json.Marshal(map[string]interface{}{"steps": stepsJSON})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(split, "episode_00000.json"), data, 0o644))
	return dir
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// loadHoldModel serves a HoldPolicy over bufconn and loads a checkpoint on it.
func loadHoldModel(t *testing.T, hold *policy.HoldPolicy) *policy.Model {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	policy.RegisterPolicyServiceServer(srv, hold)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := policy.NewClientWithService(policy.NewPolicyServiceClient(conn))
	m, err := client.LoadPretrained(context.Background(), "/ckpt/toy")
	require.NoError(t, err)
	return m
}

// #endregion helpers

func TestEvaluate_PersistsAndRescores(t *testing.T) {
	hold := policy.NewHoldPolicy(3, 2)
	hold.Action = []float32{1, 1, 1}
	model := loadHoldModel(t, hold)

	builder, err := episode.FromDirectory(writeEpisode(t, 4))
	require.NoError(t, err)
	ds, err := builder.AsDataset("train[:1]")
	require.NoError(t, err)
	ep, err := ds.Next()
	require.NoError(t, err)

	cfg := eval.DefaultConfig()
	cfg.Progress = false

	dbPath := filepath.Join(t.TempDir(), "eval.db")
	a := args{Checkpoint: "/ckpt/toy", Split: "train[:1]", DB: dbPath}
	rec, closeRun, err := openRun(a, builder.Info(), ep, cfg)
	require.NoError(t, err)
	require.NotNil(t, rec)

	plotDir := t.TempDir()
	summary, err := evaluate(context.Background(), model, ep, cfg, plotDir, rec)
	closeRun(summary, err)
	require.NoError(t, err)

	// truth at steps 1..3 is [s,0,1]; the held action is [1,1,1]
	assert.Equal(t, 3, summary.Windows)
	assert.InDelta(t, 6.0/9.0, summary.L1, 1e-6)
	assert.FileExists(t, filepath.Join(plotDir, "actions.png"))
	assert.FileExists(t, filepath.Join(plotDir, "strip.png"))

	st, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(rec.run.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFinished, run.Status)
	assert.Equal(t, "toy_kitchen", run.Dataset)
	assert.Equal(t, "open the drawer", run.Instruction)
	assert.InDelta(t, summary.L1, run.L1, 1e-9)

	windows, err := st.Windows(run.RunID)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, 1, windows[0].Step)
	assert.Len(t, windows[0].Predicted, 2)

	res, err := replay.Rescore(windows, replay.Options{HorizonIndex: run.HorizonIndex})
	require.NoError(t, err)
	assert.InDelta(t, run.L1, res.Summary.L1, 1e-9)
}

func TestEvaluate_FailedRunIsRecorded(t *testing.T) {
	model := loadHoldModel(t, policy.NewHoldPolicy(3, 1))

	builder, err := episode.FromDirectory(writeEpisode(t, 2))
	require.NoError(t, err)
	ds, err := builder.AsDataset("train")
	require.NoError(t, err)
	ep, err := ds.Next()
	require.NoError(t, err)

	cfg := eval.DefaultConfig()
	cfg.Progress = false
	cfg.WindowSize = 3 // longer than the episode

	dbPath := filepath.Join(t.TempDir(), "eval.db")
	rec, closeRun, err := openRun(args{Checkpoint: "/ckpt/toy", Split: "train", DB: dbPath}, builder.Info(), ep, cfg)
	require.NoError(t, err)

	summary, err := evaluate(context.Background(), model, ep, cfg, "", rec)
	closeRun(summary, err)
	require.Error(t, err)

	st, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(rec.run.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.NotEmpty(t, run.Reason)
}

func TestOpenRun_NoDB(t *testing.T) {
	rec, closeRun, err := openRun(args{}, episode.DatasetInfo{}, &episode.Episode{}, eval.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, rec)
	closeRun(eval.Summary{}, nil)
}

func TestEvaluate_HorizonIndexCheckedBeforeInference(t *testing.T) {
	model := loadHoldModel(t, policy.NewHoldPolicy(3, 2))

	builder, err := episode.FromDirectory(writeEpisode(t, 3))
	require.NoError(t, err)
	ds, err := builder.AsDataset("train")
	require.NoError(t, err)
	ep, err := ds.Next()
	require.NoError(t, err)

	cfg := eval.DefaultConfig()
	cfg.Progress = false
	cfg.HorizonIndex = 2

	_, err = evaluate(context.Background(), model, ep, cfg, "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, eval.ErrShapeMismatch))
}

func TestCheckHorizonIndex(t *testing.T) {
	assert.NoError(t, checkHorizonIndex(0, 4))
	assert.NoError(t, checkHorizonIndex(3, 4))
	assert.NoError(t, checkHorizonIndex(7, 0))
	assert.Error(t, checkHorizonIndex(4, 4))
	assert.Error(t, checkHorizonIndex(-1, 4))
}

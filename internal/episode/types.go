package episode

import "image"

// #region dataset-info
// DatasetInfo is the dataset_info.json document at the root of a dataset directory.
type DatasetInfo struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	ActionDim int            `json:"action_dim"`
	Splits    map[string]int `json:"splits"` // split name -> number of episodes
}

// #endregion dataset-info

// #region step
// Observation holds the decoded camera frames for one timestep.
type Observation struct {
	Image      image.Image // primary (third-person) camera, resized
	WristImage image.Image // wrist camera, native resolution
}

// Step is one timestep record of an episode.
type Step struct {
	Observation         Observation
	LanguageInstruction string
	Action              []float32
	Reward              float32
	IsFirst             bool
	IsLast              bool
	IsTerminal          bool
}

// #endregion step

// #region episode
// Episode is one recorded demonstration trajectory.
type Episode struct {
	ID    string
	Steps []Step
}

// Len returns the number of steps.
func (e *Episode) Len() int {
	return len(e.Steps)
}

// Instruction returns the language instruction carried by the first step.
func (e *Episode) Instruction() string {
	if len(e.Steps) == 0 {
		return ""
	}
	return e.Steps[0].LanguageInstruction
}

// GoalImage returns the last primary frame, or nil for an empty episode.
func (e *Episode) GoalImage() image.Image {
	if len(e.Steps) == 0 {
		return nil
	}
	return e.Steps[len(e.Steps)-1].Observation.Image
}

// Images returns the primary frames in step order.
func (e *Episode) Images() []image.Image {
	out := make([]image.Image, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Observation.Image
	}
	return out
}

// WristImages returns the wrist frames in step order.
func (e *Episode) WristImages() []image.Image {
	out := make([]image.Image, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Observation.WristImage
	}
	return out
}

// Actions returns the ground-truth action vectors in step order.
func (e *Episode) Actions() [][]float32 {
	out := make([][]float32, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Action
	}
	return out
}

// #endregion episode

// #region file-types
// stepFile mirrors one step entry inside an episode_NNNNN.json file.
type stepFile struct {
	Observation struct {
		Image      string `json:"image"`
		WristImage string `json:"wrist_image"`
	} `json:"observation"`
	LanguageInstruction string    `json:"language_instruction"`
	Action              []float32 `json:"action"`
	Reward              float32   `json:"reward"`
	IsFirst             bool      `json:"is_first"`
	IsLast              bool      `json:"is_last"`
	IsTerminal          bool      `json:"is_terminal"`
}

type episodeFile struct {
	Steps []stepFile `json:"steps"`
}

// #endregion file-types

package episode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// DefaultPrimarySize is the side length primary frames are resized to.
const DefaultPrimarySize = 256

// ErrNoEpisodes is returned when a split resolves to zero episodes.
var ErrNoEpisodes = errors.New("no episodes")

// #region builder
// Builder reads a dataset directory laid out as dataset_info.json plus one
// sub-directory of episode_NNNNN.json files per split.
type Builder struct {
	dir  string
	info DatasetInfo

	// PrimarySize is the square resolution primary frames are resized to.
	// Zero keeps the native resolution.
	PrimarySize int
}

// FromDirectory opens the dataset rooted at dir.
func FromDirectory(dir string) (*Builder, error) {
	data, err := os.ReadFile(filepath.Join(dir, "dataset_info.json"))
	if err != nil {
		return nil, fmt.Errorf("read dataset info: %w", err)
	}
	var info DatasetInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse dataset info %s: %w", dir, err)
	}
	return &Builder{dir: dir, info: info, PrimarySize: DefaultPrimarySize}, nil
}

// Info returns the parsed dataset_info.json.
func (b *Builder) Info() DatasetInfo {
	return b.info
}

// Dir returns the dataset root.
func (b *Builder) Dir() string {
	return b.dir
}

// AsDataset resolves a split expression such as "train[:1]" to a dataset.
func (b *Builder) AsDataset(split string) (*Dataset, error) {
	spec, err := ParseSplit(split)
	if err != nil {
		return nil, err
	}
	if _, ok := b.info.Splits[spec.Name]; !ok {
		return nil, fmt.Errorf("%w: unknown split %q", ErrBadSplit, spec.Name)
	}

	paths, err := filepath.Glob(filepath.Join(b.dir, spec.Name, "episode_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	sort.Strings(paths)

	from, to := spec.Resolve(len(paths))
	if from == to {
		return nil, fmt.Errorf("%w: split %q", ErrNoEpisodes, split)
	}
	return &Dataset{
		paths:       paths[from:to],
		primarySize: b.PrimarySize,
		actionDim:   b.info.ActionDim,
	}, nil
}

// #endregion builder

// #region dataset
// Dataset is an ordered, lazily decoded sequence of episodes.
type Dataset struct {
	paths       []string
	primarySize int
	actionDim   int
	pos         int
}

// Len returns the number of episodes in the dataset.
func (d *Dataset) Len() int {
	return len(d.paths)
}

// Next decodes the next episode, returning io.EOF once the dataset is drained.
func (d *Dataset) Next() (*Episode, error) {
	if d.pos >= len(d.paths) {
		return nil, io.EOF
	}
	ep, err := d.Episode(d.pos)
	if err != nil {
		return nil, err
	}
	d.pos++
	return ep, nil
}

// Episode decodes the i-th episode of the dataset.
func (d *Dataset) Episode(i int) (*Episode, error) {
	if i < 0 || i >= len(d.paths) {
		return nil, fmt.Errorf("episode index %d out of range [0,%d)", i, len(d.paths))
	}
	return loadEpisode(d.paths[i], d.primarySize, d.actionDim)
}

// #endregion dataset

// #region load
func loadEpisode(path string, primarySize, actionDim int) (*Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read episode %s: %w", path, err)
	}
	var f episodeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse episode %s: %w", path, err)
	}

	base := filepath.Dir(path)
	ep := &Episode{
		ID:    trimExt(filepath.Base(path)),
		Steps: make([]Step, len(f.Steps)),
	}
	for i, sf := range f.Steps {
		if actionDim > 0 && len(sf.Action) != actionDim {
			return nil, fmt.Errorf("episode %s step %d: action dim %d, want %d", ep.ID, i, len(sf.Action), actionDim)
		}
		img, err := loadImage(filepath.Join(base, sf.Observation.Image))
		if err != nil {
			return nil, fmt.Errorf("episode %s step %d: %w", ep.ID, i, err)
		}
		if primarySize > 0 {
			img = Resize(img, primarySize, primarySize)
		}
		wrist, err := loadImage(filepath.Join(base, sf.Observation.WristImage))
		if err != nil {
			return nil, fmt.Errorf("episode %s step %d: %w", ep.ID, i, err)
		}
		ep.Steps[i] = Step{
			Observation:         Observation{Image: img, WristImage: wrist},
			LanguageInstruction: sf.LanguageInstruction,
			Action:              sf.Action,
			Reward:              sf.Reward,
			IsFirst:             sf.IsFirst,
			IsLast:              sf.IsLast,
			IsTerminal:          sf.IsTerminal,
		}
	}
	return ep, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// #endregion load

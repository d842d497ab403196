package model

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/skylens-io/skylens/internal/features"
	"github.com/skylens-io/skylens/internal/raster"
)

// ErrMalformedArtifact marks a persisted model that cannot be used: missing
// version or threshold, or a document that does not parse. A threshold is
// never silently defaulted.
var ErrMalformedArtifact = errors.New("malformed model artifact")

// ErrNoArtifacts is returned when a models directory holds no model files.
var ErrNoArtifacts = errors.New("no model artifacts found")

// LatestName is the stable pointer file updated after each training run.
const LatestName = "latest.yaml"

// artifact mirrors Model with pointer fields so that a document missing a
// required key is detectable instead of decoding to a zero value.
type artifact struct {
	Version      *string    `yaml:"version"`
	Threshold    *float64   `yaml:"threshold"`
	CreatedAt    *string    `yaml:"created_at"`
	TrainingMean *float64   `yaml:"training_mean"`
	TrainingStd  *float64   `yaml:"training_std"`
	Provenance   Provenance `yaml:"provenance"`
}

// Save serializes the model as a YAML document under dir, named after its
// version, and returns the artifact path. The write is temp-and-rename so a
// partially written artifact is never visible.
func Save(m *Model, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding model %s: %w", m.Version, err)
	}

	path := filepath.Join(dir, "model_"+m.Version+".yaml")
	tmp, err := os.CreateTemp(dir, ".model*.yaml.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}

	logf("saved model version=%s threshold=%.4f to %s", m.Version, m.Threshold, path)
	return path, nil
}

// WriteLatest updates the latest-model pointer in dir to the content of
// modelPath.
func WriteLatest(modelPath, dir string) error {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, LatestName), data, 0o644)
}

// Load deserializes a model artifact. Artifacts missing a version or a
// threshold are rejected with an error wrapping ErrMalformedArtifact.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var a artifact
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, path, err)
	}
	if a.Version == nil || strings.TrimSpace(*a.Version) == "" {
		return nil, fmt.Errorf("%w: %s: missing version", ErrMalformedArtifact, path)
	}
	if a.Threshold == nil {
		return nil, fmt.Errorf("%w: %s: missing threshold", ErrMalformedArtifact, path)
	}

	m := &Model{
		Version:    strings.TrimSpace(*a.Version),
		Threshold:  *a.Threshold,
		Provenance: a.Provenance,
	}

	if a.CreatedAt != nil {
		if err := m.CreatedAt.UnmarshalText([]byte(*a.CreatedAt)); err != nil {
			return nil, fmt.Errorf("%w: %s: bad created_at: %v", ErrMalformedArtifact, path, err)
		}
	}

	// The training baseline is optional in older artifacts; the threshold
	// doubles as the training mean when absent.
	if a.TrainingMean != nil {
		m.TrainingMean = *a.TrainingMean
	} else {
		m.TrainingMean = *a.Threshold
	}
	if a.TrainingStd != nil {
		m.TrainingStd = *a.TrainingStd
	}

	return m, nil
}

// Latest returns the path of the most recently written model_*.yaml under
// dir, ignoring the latest-pointer file itself.
func Latest(dir string) (string, error) {
	paths, err := artifactPaths(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArtifacts, dir)
	}

	latest := paths[0]
	latestMod := modTime(latest)
	for _, p := range paths[1:] {
		if mt := modTime(p); mt.After(latestMod) {
			latest, latestMod = p, mt
		}
	}
	return latest, nil
}

// List loads every model artifact under dir, sorted newest first. Artifacts
// that fail to load are skipped with a log line rather than failing the
// listing.
func List(dir string) ([]*Model, error) {
	paths, err := artifactPaths(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		return modTime(paths[i]).After(modTime(paths[j]))
	})

	models := make([]*Model, 0, len(paths))
	for _, p := range paths {
		m, err := Load(p)
		if err != nil {
			logf("skipping %s: %v", p, err)
			continue
		}
		models = append(models, m)
	}
	return models, nil
}

// TrainDir trains on every tile file under dir, reading tiles one at a time
// in lexicographic order so memory stays bounded by a single tile.
func TrainDir(dir string) (*Model, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "tile_*"+raster.Ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no tiles in %s", ErrEmptyTrainingSet, dir)
	}

	var sum, sumSq float64
	for _, p := range paths {
		tile, err := raster.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading training tile %s: %w", p, err)
		}
		vec, err := features.Extract(tile)
		if err != nil {
			return nil, fmt.Errorf("extracting features from %s: %w", p, err)
		}
		sum += vec.MeanIntensity
		sumSq += vec.MeanIntensity * vec.MeanIntensity
	}

	m := newFromMoments(sum, sumSq, len(paths))
	m.Provenance.TilesDir = dir
	return m, nil
}

func artifactPaths(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "model_*.yaml"))
}

func modTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

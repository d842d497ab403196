package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/skylens-io/skylens/internal/health"
	"github.com/skylens-io/skylens/internal/observe"
)

// ErrMalformedSnapshot marks a stored snapshot that cannot be re-evaluated:
// unparseable, or missing its run identity.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Snapshot encodings.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatAuto = "auto"
)

// Metadata is the snapshot header: run identity, model provenance, and the
// run's aggregate outcome.
type Metadata struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	ModelPath    string    `json:"model_path" yaml:"model_path"`
	ModelVersion string    `json:"model_version" yaml:"model_version"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`

	TilesInferred int `json:"tiles_inferred" yaml:"tiles_inferred"`
	TilesFailed   int `json:"tiles_failed" yaml:"tiles_failed"`

	Monitoring observe.Metrics `json:"monitoring" yaml:"monitoring"`
	Health     health.Report   `json:"health" yaml:"health"`
}

// PredictionRecord is one tile's classification as stored in a snapshot.
type PredictionRecord struct {
	TileID        string  `json:"tile_id" yaml:"tile_id"`
	Class         int     `json:"class" yaml:"class"`
	MeanIntensity float64 `json:"mean_intensity" yaml:"mean_intensity"`
}

// Snapshot is the single durable artifact of one batch run.
type Snapshot struct {
	Metadata    Metadata           `json:"metadata" yaml:"metadata"`
	Predictions []PredictionRecord `json:"predictions" yaml:"predictions"`
}

// resolveFormat maps a requested format and output path to a concrete
// encoding. Auto selects by extension, defaulting to JSON.
func resolveFormat(format, path string) (string, error) {
	switch format {
	case FormatJSON, FormatYAML:
		return format, nil
	case FormatAuto, "":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return FormatYAML, nil
		default:
			return FormatJSON, nil
		}
	}
	return "", fmt.Errorf("unknown snapshot format %q (expected json, yaml or auto)", format)
}

// WriteSnapshot persists the snapshot to path in the given format using a
// temp-and-rename write, so readers never observe a partial document.
func WriteSnapshot(s *Snapshot, path, format string) error {
	f, err := resolveFormat(format, path)
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case FormatYAML:
		data, err = yaml.Marshal(s)
	default:
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", s.Metadata.RunID, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot loads a stored snapshot, selecting the decoder by extension.
// Documents that do not parse or carry no run ID are rejected with an error
// wrapping ErrMalformedSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, path, err)
	}
	if strings.TrimSpace(s.Metadata.RunID) == "" {
		return nil, fmt.Errorf("%w: %s: missing run_id", ErrMalformedSnapshot, path)
	}
	return &s, nil
}

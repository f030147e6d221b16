package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/features"
	"github.com/KaramelBytes/riskloom-cli/internal/model"
	"github.com/KaramelBytes/riskloom-cli/internal/utils"
	"github.com/google/uuid"
)

// Object names inside a store.
const (
	SeverityModelName    = "severity_model.json"
	ProbabilityModelName = "probability_model.json"
	EncodersName         = "encoders.json"
	SeverityColumnsName  = "feature_columns_severity.json"
	ClfColumnsName       = "feature_columns_clf.json"
	ManifestName         = "manifest.json"
)

// RequiredNames lists the objects a bundle cannot load without.
var RequiredNames = []string{SeverityModelName, ProbabilityModelName, EncodersName, SeverityColumnsName, ClfColumnsName}

// ErrNotFound matches MissingError.
var ErrNotFound = errors.New("models not found")

// MissingError names every required artifact absent from a store.
type MissingError struct {
	Location string
	Names    []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("models not found in %s: missing %s", e.Location, strings.Join(e.Names, ", "))
}

// Is reports whether target is ErrNotFound.
func (e *MissingError) Is(target error) bool { return target == ErrNotFound }

// Manifest describes a training run. It is informational and optional when
// loading.
type Manifest struct {
	RunID                 string                      `json:"run_id"`
	CreatedAt             time.Time                   `json:"created_at"`
	Variant               string                      `json:"variant"`
	SeverityKind          string                      `json:"severity_kind"`
	ProbabilityKind       string                      `json:"probability_kind"`
	SeverityMetrics       model.RegressionMetrics     `json:"severity_metrics"`
	ClassificationMetrics model.ClassificationMetrics `json:"classification_metrics"`
	SeverityImportance    []model.Importance          `json:"severity_importance,omitempty"`
	ProbabilityImportance []model.Importance          `json:"probability_importance,omitempty"`
	TrainRows             int                         `json:"train_rows"`
	TestRows              int                         `json:"test_rows"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(variant string) *Manifest {
	return &Manifest{RunID: uuid.NewString(), CreatedAt: time.Now().UTC(), Variant: variant}
}

// Bundle is everything the dashboard needs for inference.
type Bundle struct {
	Severity              model.Regressor
	Probability           model.Classifier
	Encoders              features.Encoders
	SeverityColumns       []string
	ClassificationColumns []string
	Manifest              *Manifest
}

type object struct {
	name string
	data []byte
}

// Save writes every object of the bundle. The manifest is written last so a
// partially written bundle has none.
func Save(ctx context.Context, s Store, b *Bundle) error {
	if b.Severity == nil || b.Probability == nil {
		return fmt.Errorf("save bundle: both models are required")
	}
	sev, err := model.Marshal(b.Severity)
	if err != nil {
		return fmt.Errorf("serialize severity model: %w", err)
	}
	prob, err := model.Marshal(b.Probability)
	if err != nil {
		return fmt.Errorf("serialize probability model: %w", err)
	}
	objects := []object{{SeverityModelName, sev}, {ProbabilityModelName, prob}}
	for name, v := range map[string]any{
		EncodersName:        b.Encoders,
		SeverityColumnsName: b.SeverityColumns,
		ClfColumnsName:      b.ClassificationColumns,
	} {
		data, err := utils.PrettyJSON(v)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", name, err)
		}
		objects = append(objects, object{name, data})
	}
	for _, o := range objects {
		if err := s.Put(ctx, o.name, o.data); err != nil {
			return err
		}
	}
	if b.Manifest != nil {
		b.Manifest.SeverityKind = model.Kind(b.Severity)
		b.Manifest.ProbabilityKind = model.Kind(b.Probability)
		data, err := utils.PrettyJSON(b.Manifest)
		if err != nil {
			return err
		}
		if err := s.Put(ctx, ManifestName, data); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a bundle. When any required object is absent the error is a
// *MissingError listing all of them.
func Load(ctx context.Context, s Store) (*Bundle, error) {
	raw := make(map[string][]byte, len(RequiredNames))
	var missing []string
	for _, name := range RequiredNames {
		data, err := s.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				missing = append(missing, name)
				continue
			}
			return nil, err
		}
		raw[name] = data
	}
	if len(missing) > 0 {
		return nil, &MissingError{Location: s.Location(), Names: missing}
	}

	b := &Bundle{}
	var err error
	if b.Severity, err = model.UnmarshalRegressor(raw[SeverityModelName]); err != nil {
		return nil, fmt.Errorf("load %s: %w", SeverityModelName, err)
	}
	if b.Probability, err = model.UnmarshalClassifier(raw[ProbabilityModelName]); err != nil {
		return nil, fmt.Errorf("load %s: %w", ProbabilityModelName, err)
	}
	if err := json.Unmarshal(raw[EncodersName], &b.Encoders); err != nil {
		return nil, fmt.Errorf("load %s: %w", EncodersName, err)
	}
	if err := json.Unmarshal(raw[SeverityColumnsName], &b.SeverityColumns); err != nil {
		return nil, fmt.Errorf("load %s: %w", SeverityColumnsName, err)
	}
	if err := json.Unmarshal(raw[ClfColumnsName], &b.ClassificationColumns); err != nil {
		return nil, fmt.Errorf("load %s: %w", ClfColumnsName, err)
	}

	if data, err := s.Get(ctx, ManifestName); err == nil {
		var m Manifest
		if json.Unmarshal(data, &m) == nil {
			b.Manifest = &m
		}
	}
	return b, nil
}

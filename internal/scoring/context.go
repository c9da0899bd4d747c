package scoring

import (
	"fmt"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/model"
)

// ModelContext is the immutable pairing of a feature codec and the classifier
// trained on vectors it produces.
type ModelContext struct {
	codec *features.Codec
	model *model.Model
}

// NewModelContext pairs codec and m after checking that their dimensions agree.
// A mismatch is returned as a fatal *domain.ModelError.
func NewModelContext(codec *features.Codec, m *model.Model) (*ModelContext, error) {
	if codec == nil || m == nil || m.Classifier == nil {
		return nil, fmt.Errorf("%w: codec and classifier are required", domain.ErrModelUnavailable)
	}
	if err := model.CheckCompatibility(codec.Len(), m.Classifier); err != nil {
		return nil, err
	}
	return &ModelContext{codec: codec, model: m}, nil
}

// LoadModelContext reads the metadata and model artifacts named by cfg.
// Unreadable or invalid artifacts wrap domain.ErrModelUnavailable; an
// incompatible pair is a fatal *domain.ModelError.
func LoadModelContext(cfg domain.ModelConfig) (*ModelContext, error) {
	meta, err := features.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}

	codec, err := features.NewCodec(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}

	m, err := model.Load(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}

	return NewModelContext(codec, m)
}

// Version identifies the model. The artifact version wins over the metadata version.
func (mc *ModelContext) Version() string {
	if mc.model.Version != "" {
		return mc.model.Version
	}
	return mc.codec.Metadata().Version
}

// Codec returns the feature codec.
func (mc *ModelContext) Codec() *features.Codec {
	return mc.codec
}

// Model returns the loaded classifier.
func (mc *ModelContext) Model() *model.Model {
	return mc.model
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied and validated
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData is the complete analysis parameter set
type ConfigData struct {
	Binning  BinningData  `yaml:"binning" json:"binning"`
	Decoding DecodingData `yaml:"decoding" json:"decoding"`
	SWR      SWRData      `yaml:"swr" json:"swr"`
	Sequence SequenceData `yaml:"sequence" json:"sequence"`
	Shuffle  ShuffleData  `yaml:"shuffle" json:"shuffle"`
	Storage  StorageData  `yaml:"storage" json:"storage"`
}

// BinningData controls spike binning for replay sequences. A zero window
// means one bin; a zero gaussian-std disables Gaussian smoothing.
type BinningData struct {
	Dt          float64 `yaml:"dt" json:"dt" default:"0.025" validate:"gt=0"`
	Window      float64 `yaml:"window" json:"window" validate:"gte=0"`
	GaussianStd float64 `yaml:"gaussian-std" json:"gaussian_std" validate:"gte=0"`
	Normalized  *bool   `yaml:"normalized" json:"normalized" default:"true"`
}

// DecodingData gates which time bins are decoded
type DecodingData struct {
	MinNeurons int     `yaml:"min-neurons" json:"min_neurons" default:"2" validate:"gte=0"`
	MinSpikes  float64 `yaml:"min-spikes" json:"min_spikes" default:"1" validate:"gte=0"`
}

// SWRData configures ripple detection and event restriction
type SWRData struct {
	FreqBand    []float64 `yaml:"freq-band" json:"freq_band" default:"[140,250]" validate:"len=2,dive,gt=0"`
	ZThresh     float64   `yaml:"z-thresh" json:"z_thresh" default:"3"`
	PowerThresh float64   `yaml:"power-thresh" json:"power_thresh" default:"5"`
	MergeThresh float64   `yaml:"merge-thresh" json:"merge_thresh" default:"0.02" validate:"gte=0"`
	MinLength   float64   `yaml:"min-length" json:"min_length" default:"0.01" validate:"gte=0"`
	MinInvolved int       `yaml:"min-involved" json:"min_involved" default:"4" validate:"gte=0"`

	// RestSpeed is the tracked speed below which the animal is resting
	RestSpeed float64 `yaml:"rest-speed" json:"rest_speed" default:"4" validate:"gt=0"`
	// ZScoreOnRest calibrates the envelope z-score on rest periods only
	ZScoreOnRest bool    `yaml:"zscore-on-rest" json:"zscore_on_rest"`
	MinDuration  float64 `yaml:"min-duration" json:"min_duration" default:"0.05" validate:"gte=0"`
	MinSWR       int     `yaml:"min-swr" json:"min_swr" default:"3" validate:"gte=0"`
}

// SequenceData configures teleport removal in decoded replay
type SequenceData struct {
	SpeedThresh float64 `yaml:"speed-thresh" json:"speed_thresh" default:"1500" validate:"gt=0"`
	MinLength   int     `yaml:"min-length" json:"min_length" default:"3" validate:"gte=1"`
	MinEpochs   int     `yaml:"min-epochs" json:"min_epochs" default:"1" validate:"gte=0"`
	Margin      float64 `yaml:"margin" json:"margin" default:"0.002" validate:"gte=0"`
}

// ShuffleData configures the permutation test. Workers of zero uses every CPU.
type ShuffleData struct {
	NumShuffles      int     `yaml:"n-shuffles" json:"n_shuffles" default:"100" validate:"gte=1"`
	Workers          int     `yaml:"workers" json:"workers" validate:"gte=0"`
	Seed             uint64  `yaml:"seed" json:"seed" default:"1"`
	PercentileThresh float64 `yaml:"percentile-thresh" json:"percentile_thresh" default:"95" validate:"gt=0,lte=100"`
}

// StorageData selects the artifact cache. Backend "none" disables caching.
type StorageData struct {
	Backend string `yaml:"backend" json:"backend" default:"none" validate:"oneof=none memory sqlite postgres"`
	DSN     string `yaml:"dsn" json:"dsn" validate:"required_if=Backend sqlite,required_if=Backend postgres"`
}

// IsNormalized reports the effective boxcar normalization
func (b BinningData) IsNormalized() bool {
	return b.Normalized == nil || *b.Normalized
}

// Default returns a configuration with every default applied
func Default() *ConfigData {
	c := &ConfigData{}
	defaults.MustSet(c)
	return c
}

// finalize applies defaults to fields left unset and validates the result
func finalize(c *ConfigData) (*ConfigData, error) {
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks field ranges and the frequency band ordering
func (c *ConfigData) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				msgs = append(msgs, errorMessage(e))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SWR.FreqBand[1] <= c.SWR.FreqBand[0] {
		return fmt.Errorf("%w: swr.freq-band %v must be increasing", ErrInvalidConfig, c.SWR.FreqBand)
	}
	return nil
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "len":
		return fmt.Sprintf("%s must have %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

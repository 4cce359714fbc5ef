// Package fingerprint turns skeleton images into minutiae templates.
//
//	tc := fingerprint.NewTemplateCreator(logger)
//	probe, err := tc.FromFile("probe.png")
//
// Matching lives in the matcher package; the pieces of the pipeline are in
// skeleton, minutiae and feature.
package fingerprint

import (
	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/feature"
	"github.com/high-horse/fingerprint-server/minutiae"
	"github.com/high-horse/fingerprint-server/skeleton"
	"github.com/high-horse/fingerprint-server/transparency"
)

// TemplateCreator decodes skeleton images and encodes their minutiae.
type TemplateCreator struct {
	detector   *minutiae.Detector
	ridgeValue uint8
}

// NewTemplateCreator uses the detector settings of the global config.
func NewTemplateCreator(log *logrus.Logger, t *transparency.Logger) *TemplateCreator {
	return NewTemplateCreatorWith(config.Config.Detector, log, t)
}

func NewTemplateCreatorWith(cfg config.DetectorConfig, log *logrus.Logger, t *transparency.Logger) *TemplateCreator {
	opts := []minutiae.Option{minutiae.WithLogger(log), minutiae.WithTransparency(t)}
	if cfg.BorderMargin > 0 {
		opts = append(opts, minutiae.WithBorderMargin(cfg.BorderMargin))
	}
	if cfg.MinDistance > 0 {
		opts = append(opts, minutiae.WithMinDistance(cfg.MinDistance))
	}
	ridge := cfg.RidgeValue
	if ridge == 0 {
		ridge = 255
	}
	return &TemplateCreator{
		detector:   minutiae.NewDetector(opts...),
		ridgeValue: ridge,
	}
}

// Template detects the minutiae of img and encodes them.
func (tc *TemplateCreator) Template(img *skeleton.Image) feature.Vector {
	return feature.Encode(tc.detector.Detect(img))
}

func (tc *TemplateCreator) FromBytes(data []byte) (feature.Vector, error) {
	img, err := skeleton.DecodeBytes(data, tc.ridgeValue)
	if err != nil {
		return nil, err
	}
	return tc.Template(img), nil
}

// FromBase64 accepts plain base64 or a data URL.
func (tc *TemplateCreator) FromBase64(s string) (feature.Vector, error) {
	img, err := skeleton.DecodeBase64(s, tc.ridgeValue)
	if err != nil {
		return nil, err
	}
	return tc.Template(img), nil
}

func (tc *TemplateCreator) FromFile(path string) (feature.Vector, error) {
	img, err := skeleton.Load(path, tc.ridgeValue)
	if err != nil {
		return nil, err
	}
	return tc.Template(img), nil
}

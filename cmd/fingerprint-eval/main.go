// Command fingerprint-eval enrolls a training folder of skeleton images,
// identifies every image of a test folder and reports accuracy, AUC and EER.
//
// File names carry the person id before the first underscore, e.g.
// 101_1.bmp.
//
// Usage: fingerprint-eval -train data/train -test data/test [-config fps.toml] [-roc roc.json]
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/dataset"
	"github.com/high-horse/fingerprint-server/evaluation"
	"github.com/high-horse/fingerprint-server/feature"
	"github.com/high-horse/fingerprint-server/internal/log"
	"github.com/high-horse/fingerprint-server/matcher"
)

type report struct {
	Total     int                `json:"total"`
	Correct   int                `json:"correct"`
	Accuracy  float64            `json:"accuracy"`
	AUC       float64            `json:"auc"`
	EER       *float64           `json:"eer"`
	EERAt     *float64           `json:"eer_threshold"`
	ROC       []evaluation.Point `json:"roc"`
	Templates int                `json:"templates"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -train DIR -test DIR [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	path := flag.String("config", "", "TOML configuration file")
	train := flag.String("train", "data/train", "folder of enrollment images")
	test := flag.String("test", "data/test", "folder of probe images")
	rocOut := flag.String("roc", "", "write the report with ROC points as JSON to this file")
	flag.Parse()

	if err := config.LoadConfig(*path); err != nil {
		log.Logger().Fatalf("load config: %v", err)
	}
	logger := log.NewLogger(config.Config.Log)

	rep, err := run(context.Background(), config.Config, logger, *train, *test)
	if err != nil {
		logger.Fatal(err)
	}

	logger.WithFields(logrus.Fields{
		"total":    rep.Total,
		"correct":  rep.Correct,
		"accuracy": fmt.Sprintf("%.2f%%", rep.Accuracy*100),
	}).Info("system performance")
	fields := logrus.Fields{"auc": fmt.Sprintf("%.3f", rep.AUC)}
	if rep.EER != nil {
		fields["eer"] = fmt.Sprintf("%.3f", *rep.EER)
	}
	if rep.EERAt != nil {
		fields["eer_threshold"] = *rep.EERAt
	}
	logger.WithFields(fields).Info("error rates")

	if *rocOut != "" {
		data, err := jsoniter.MarshalIndent(rep, "", "  ")
		if err != nil {
			logger.Fatal(err)
		}
		if err := os.WriteFile(*rocOut, data, 0o644); err != nil {
			logger.Fatal(err)
		}
	}
}

func run(ctx context.Context, cfg config.Configuration, logger *logrus.Logger, trainDir, testDir string) (report, error) {
	trainSet, err := dataset.Load(trainDir)
	if err != nil {
		return report{}, err
	}
	testSet, err := dataset.Load(testDir)
	if err != nil {
		return report{}, err
	}

	tc := fingerprint.NewTemplateCreatorWith(cfg.Detector, logger, nil)
	m := matcher.New(
		matcher.WithThreshold(cfg.Matcher.Threshold),
		matcher.WithWorkers(cfg.Workers),
		matcher.WithLogger(logger),
	)

	logger.WithField("samples", trainSet.Len()).Info("starting enrollment phase")
	trainSamples := trainSet.All()
	trainFeatures, err := extract(ctx, tc, trainSamples, cfg.Workers)
	if err != nil {
		return report{}, err
	}
	for i, s := range trainSamples {
		if err := m.Enroll(s.Person, trainFeatures[i]); err != nil {
			return report{}, fmt.Errorf("enroll %s: %w", s.Path, err)
		}
	}

	logger.WithField("samples", testSet.Len()).Info("starting testing phase")
	testSamples := testSet.All()
	testFeatures, err := extract(ctx, tc, testSamples, cfg.Workers)
	if err != nil {
		return report{}, err
	}

	ev := evaluation.New()
	rep := report{Templates: m.Store().Len()}
	for i, s := range testSamples {
		res, err := m.Identify(ctx, testFeatures[i])
		if err != nil {
			return report{}, fmt.Errorf("identify %s: %w", s.Path, err)
		}
		genuine := res.Identity == s.Person
		ev.Add(res.Score, genuine)
		rep.Total++
		if genuine {
			rep.Correct++
		}
		logger.WithFields(logrus.Fields{
			"sample":  s.Path,
			"matched": res.Identity,
			"score":   res.Score.String(),
		}).Debug("identified")
	}

	if rep.Total > 0 {
		rep.Accuracy = float64(rep.Correct) / float64(rep.Total)
	}
	rep.ROC = ev.ROC()
	rep.AUC = ev.AUC()
	eer, at := ev.EER()
	rep.EER, rep.EERAt = finite(eer), finite(at)
	return rep, nil
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// extract builds templates for samples concurrently; the result is indexed
// like samples.
func extract(ctx context.Context, tc *fingerprint.TemplateCreator, samples []dataset.Sample, workers int) ([]feature.Vector, error) {
	out := make([]feature.Vector, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, s := range samples {
		i, s := i, s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := tc.FromFile(s.Path)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

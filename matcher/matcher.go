// Package matcher scores minutiae templates against each other and runs
// 1:N identification and 1:1 verification over a template store.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/high-horse/fingerprint-server/feature"
	"github.com/high-horse/fingerprint-server/internal/assign"
	"github.com/high-horse/fingerprint-server/transparency"
)

// DefaultThreshold accepts a verification when the mean similarity of the
// optimal pairing is at least 0.5.
const DefaultThreshold = -0.5

var ErrEmptyIdentity = errors.New("identity must not be empty")

// Result is the outcome of Identify. Identity is empty only when nothing is
// enrolled.
type Result struct {
	Identity string `json:"identity"`
	Score    Score  `json:"score"`
}

type Matcher struct {
	store       *Store
	threshold   float64
	workers     int
	log         *logrus.Logger
	transparent *transparency.Logger
}

type Option func(*Matcher)

// WithThreshold sets the verification threshold in distance units.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithWorkers bounds how many templates Identify and Verify score at once.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithStore shares an existing store instead of starting empty.
func WithStore(s *Store) Option {
	return func(m *Matcher) { m.store = s }
}

func WithLogger(l *logrus.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

func WithTransparency(t *transparency.Logger) Option {
	return func(m *Matcher) { m.transparent = t }
}

func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold: DefaultThreshold,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewStore()
	}
	return m
}

func (m *Matcher) Store() *Store { return m.store }

func (m *Matcher) Threshold() float64 { return m.threshold }

// Accepts reports whether score is at or below the threshold.
func (m *Matcher) Accepts(score Score) bool {
	d, ok := score.Value()
	return ok && d <= m.threshold
}

// Enroll appends a template for identity. Malformed vectors are rejected;
// empty ones are kept and simply never match.
func (m *Matcher) Enroll(identity string, features feature.Vector) error {
	_, err := m.EnrollTemplate(identity, features)
	return err
}

// EnrollTemplate is Enroll returning the stored template.
func (m *Matcher) EnrollTemplate(identity string, features feature.Vector) (Template, error) {
	if identity == "" {
		return Template{}, ErrEmptyIdentity
	}
	if err := features.Validate(); err != nil {
		return Template{}, err
	}
	t := m.store.Add(identity, features)
	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"identity": identity,
			"template": t.ID,
			"minutiae": features.Len(),
		}).Debug("template enrolled")
	}
	return t, nil
}

// MatchTemplates pairs query and template minutiae one-to-one so that total
// similarity is maximal and returns minus the mean similarity of the chosen
// pairs. Unpaired points on the larger side are ignored. Either side being
// empty yields NoScore.
func (m *Matcher) MatchTemplates(query, template feature.Vector) (Score, error) {
	q, err := feature.Decode(query)
	if err != nil {
		return NoScore, fmt.Errorf("query: %w", err)
	}
	t, err := feature.Decode(template)
	if err != nil {
		return NoScore, fmt.Errorf("template: %w", err)
	}
	if len(q) == 0 || len(t) == 0 {
		return NoScore, nil
	}

	sim := similarityMatrix(q, t)
	pairs, err := assign.Maximize(sim)
	if err != nil {
		return NoScore, err
	}
	score := Distance(-assign.Total(sim, pairs) / float64(len(pairs)))

	m.trace(sim, pairs, score)
	return score, nil
}

func (m *Matcher) trace(sim *mat.Dense, pairs []assign.Pair, score Score) {
	if m.transparent.Accepts(transparency.KeySimilarity) {
		r, _ := sim.Dims()
		rows := make([][]float64, r)
		for i := range rows {
			rows[i] = mat.Row(nil, i, sim)
		}
		m.logTransparency(transparency.KeySimilarity, rows)
	}
	m.logTransparency(transparency.KeyAssignment, pairs)
	m.logTransparency(transparency.KeyScore, score.Float())
}

func (m *Matcher) logTransparency(key string, v interface{}) {
	if err := m.transparent.Log(key, v); err != nil && m.log != nil {
		m.log.WithError(err).Warn("transparency log failed")
	}
}

// Identify scores query against every enrolled template and returns the
// identity owning the best one. Ties go to the template that comes first in
// store iteration order: identities by first enrollment, then each
// identity's templates in the order they were added. If no comparison
// produced a score, the first enrolled identity is returned with NoScore;
// Identity is empty only for an empty store.
func (m *Matcher) Identify(ctx context.Context, query feature.Vector) (Result, error) {
	if err := query.Validate(); err != nil {
		return Result{}, fmt.Errorf("query: %w", err)
	}
	templates := m.store.Snapshot()
	if len(templates) == 0 {
		return Result{}, nil
	}

	idx, score, err := m.best(ctx, query, templates)
	if err != nil {
		return Result{}, err
	}
	return Result{Identity: templates[idx].Identity, Score: score}, nil
}

// Verify compares query with the templates of the claimed identity only.
// An unknown identity is rejected with NoScore.
func (m *Matcher) Verify(ctx context.Context, query feature.Vector, identity string) (bool, Score, error) {
	if err := query.Validate(); err != nil {
		return false, NoScore, fmt.Errorf("query: %w", err)
	}
	templates, ok := m.store.Templates(identity)
	if !ok || len(templates) == 0 {
		return false, NoScore, nil
	}

	_, score, err := m.best(ctx, query, templates)
	if err != nil {
		return false, NoScore, err
	}
	return m.Accepts(score), score, nil
}

// best scores query against templates concurrently and returns the index
// and score of the minimum. The reduction runs in template order after all
// scores are in, so the earliest template wins ties regardless of
// scheduling.
func (m *Matcher) best(ctx context.Context, query feature.Vector, templates []Template) (int, Score, error) {
	scores := make([]Score, len(templates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range templates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := m.MatchTemplates(query, templates[i].Features)
			if err != nil {
				return fmt.Errorf("identity %q: %w", templates[i].Identity, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, NoScore, err
	}

	idx := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Less(scores[idx]) {
			idx = i
		}
	}
	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"templates": len(templates),
			"identity":  templates[idx].Identity,
			"score":     scores[idx].String(),
		}).Debug("best template")
	}
	return idx, scores[idx], nil
}

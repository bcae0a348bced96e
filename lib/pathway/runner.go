package pathway

import (
	"context"
	"time"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/normalize"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// An Outcome is the decomposition of one pathway. Err is set when the
// pathway could not be cut out of the assay; Result is nil then.
type Outcome struct {
	Pathway  string
	Features []string
	Result   *aespca.Result
	Err      error
	Elapsed  time.Duration
}

type Runner struct {
	decomposer *aespca.Decomposer
	logger     zerolog.Logger
}

func NewRunner(decomposer *aespca.Decomposer, logger zerolog.Logger) *Runner {
	return &Runner{decomposer: decomposer, logger: logger}
}

// DecomposeMatrix decomposes x, standardizing a copy of its columns first
// if cfg asks for it.
func (r *Runner) DecomposeMatrix(name string, x *mat.Dense, features []string, cfg settings.AESSettings) *Outcome {
	start := time.Now()
	if cfg.Standardize {
		x = mat.DenseCopyOf(x)
		constant := normalize.StandardizeColumns(x)
		for j, isConstant := range constant {
			if isConstant && j < len(features) {
				r.logger.Debug().Str("pathway", name).Str("feature", features[j]).Msg("constant feature")
			}
		}
	}
	result := r.decomposer.Decompose(x, features, cfg)
	elapsed := time.Since(start)
	r.logger.Debug().Str("pathway", name).Str("status", string(result.Status)).
		Int("iterations", result.Iterations).Dur("elapsed", elapsed).Msg("pathway decomposed")
	return &Outcome{
		Pathway:  name,
		Features: features,
		Result:   result,
		Elapsed:  elapsed,
	}
}

// Decompose cuts p out of assay and decomposes it.
func (r *Runner) Decompose(assay *Assay, p Pathway, cfg settings.AESSettings) *Outcome {
	x, features, err := assay.Subset(p, cfg.MinFeatures)
	if err != nil {
		r.logger.Info().Err(err).Str("pathway", p.Name).Msg("skipping pathway")
		return &Outcome{Pathway: p.Name, Err: err}
	}
	return r.DecomposeMatrix(p.Name, x, features, cfg)
}

// DecomposeNamed decomposes the pathway called name.
func (r *Runner) DecomposeNamed(assay *Assay, c *Collection, name string, cfg settings.AESSettings) (*Outcome, error) {
	p, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return r.Decompose(assay, p, cfg), nil
}

// DecomposeAll decomposes every pathway in c with at most cfg.Workers
// running at once. Outcomes are in collection order. The only error is the
// context's; pathways not started by then have a nil outcome.
func (r *Runner) DecomposeAll(ctx context.Context, assay *Assay, c *Collection, cfg settings.AESSettings) ([]*Outcome, error) {
	outcomes := make([]*Outcome, c.Len())
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range c.All() {
		if gctx.Err() != nil {
			break
		}
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.Decompose(assay, p, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	r.logger.Info().Int("pathways", c.Len()).Int("workers", workers).Msg("batch done")
	return outcomes, nil
}

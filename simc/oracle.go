package simc

import (
	"context"

	"github.com/google/uuid"

	"github.com/mwhitby/talentbeam/optimizer/beam"
)

// Oracle adapts a Runner to the beam search's scoring interface. Each scored
// build gets a unique output name so concurrent runs never collide on files.
type Oracle struct {
	runner *Runner
	spec   string
}

// NewOracle wraps a Runner. spec is the specialization name rendered into the
// profile; it must match the tree being optimized.
func NewOracle(runner *Runner, spec string) *Oracle {
	return &Oracle{runner: runner, spec: spec}
}

// Score runs one simulation for the build and returns its mean DPS.
func (o *Oracle) Score(ctx context.Context, build beam.Build) (float64, error) {
	out, err := o.runner.Run(ctx, Input{
		OutputName:   "beam_search_" + uuid.NewString(),
		Name:         build.Player.Name,
		Level:        build.Player.Level,
		Race:         build.Player.Race,
		Spec:         o.spec,
		ClassTalents: build.ClassTalents.TalentString(),
		SpecTalents:  build.SpecTalents.TalentString(),
		HeroTalents:  build.HeroTalents.TalentString(),
	})
	if err != nil {
		return 0, err
	}
	return out.DPS, nil
}

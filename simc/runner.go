package simc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultExecutable = "simc"
	DefaultTimeout    = 5 * time.Minute
)

// Config holds runner configuration.
type Config struct {
	// Executable is the simc binary path.
	Executable string

	// OutputDir receives per-run script and report files.
	OutputDir string

	// Timeout bounds a single simc invocation. A timed-out run counts as a
	// failed evaluation, not a fatal error.
	Timeout time.Duration
}

// Input describes a single simulation run.
type Input struct {
	OutputName   string
	Name         string
	Level        int
	Race         string
	Spec         string
	ClassTalents string
	SpecTalents  string
	HeroTalents  string
}

// Output is the parsed result of a run.
type Output struct {
	DPS float64
}

// report mirrors the slice of the simc json2 schema we care about.
type report struct {
	Sim struct {
		Players []struct {
			Name          string `json:"name"`
			CollectedData struct {
				DPS struct {
					Mean float64 `json:"mean"`
				} `json:"dps"`
			} `json:"collected_data"`
		} `json:"players"`
	} `json:"sim"`
}

// Runner executes simc processes one at a time per call. It is safe for
// concurrent use; each run gets its own files named by the caller.
type Runner struct {
	cfg  Config
	tmpl *Template
	log  *zap.SugaredLogger
}

// NewRunner creates a Runner. Zero config fields fall back to defaults.
func NewRunner(cfg Config, tmpl *Template, log *zap.SugaredLogger) *Runner {
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{cfg: cfg, tmpl: tmpl, log: log}
}

// Run renders the profile, invokes simc, and parses the JSON report. Any
// failure (process, parse, timeout) is returned as an error; callers treat it
// as "no score for this build".
func (r *Runner) Run(ctx context.Context, in Input) (*Output, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create simc output dir: %w", err)
	}

	script, err := r.tmpl.Render(RenderArgs{
		Name:         in.Name,
		Level:        in.Level,
		Race:         in.Race,
		Spec:         in.Spec,
		ClassTalents: in.ClassTalents,
		SpecTalents:  in.SpecTalents,
		HeroTalents:  in.HeroTalents,
	}, in.OutputName)
	if err != nil {
		return nil, err
	}

	scriptPath := filepath.Join(r.cfg.OutputDir, in.OutputName+".simc")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return nil, fmt.Errorf("write simc script: %w", err)
	}
	jsonPath := r.tmpl.JSONPath(in.OutputName)
	defer r.cleanup(scriptPath, jsonPath, r.tmpl.HTMLPath(in.OutputName))

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, r.cfg.Executable, scriptPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("simc run %s: %w (output: %s)", in.OutputName, err, truncate(string(out), 500))
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read simc report: %w", err)
	}
	dps, err := parseReport(data)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", in.OutputName, err)
	}
	r.log.Debugw("simc run complete",
		"output", in.OutputName,
		"dps", dps,
		"took", time.Since(start).Round(time.Millisecond))
	return &Output{DPS: dps}, nil
}

// parseReport extracts the first player's mean DPS from a json2 report.
func parseReport(data []byte) (float64, error) {
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return 0, fmt.Errorf("parse simc report: %w", err)
	}
	if len(rep.Sim.Players) == 0 {
		return 0, fmt.Errorf("simc report has no players")
	}
	return rep.Sim.Players[0].CollectedData.DPS.Mean, nil
}

func (r *Runner) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.log.Debugw("failed to remove simc artifact", "path", p, "error", err)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

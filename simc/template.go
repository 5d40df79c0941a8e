// Package simc renders SimulationCraft input scripts, runs the simc binary,
// and parses its JSON report into a single DPS number. It is the fitness
// oracle behind the beam search.
package simc

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

// outputPart is appended to every profile template so the run always writes a
// machine-readable report we can parse.
const outputPart = `
# Saving report data
#html={{.HTMLPath}}
json2={{.JSONPath}}
`

// DefaultProfileTemplate is a minimal demon hunter profile. Real runs usually
// supply a hand-tuned template with gear and consumables.
const DefaultProfileTemplate = `demonhunter="{{.Name}}"
level={{.Level}}
race={{.Race}}
spec={{.Spec}}
class_talents={{.ClassTalents}}
spec_talents={{.SpecTalents}}
hero_talents={{.HeroTalents}}
`

// RenderArgs is everything the profile template can reference.
type RenderArgs struct {
	Name         string
	Level        int
	Race         string
	Spec         string
	ClassTalents string
	SpecTalents  string
	HeroTalents  string

	// Paths are filled in by Template.Render from the output name.
	JSONPath string
	HTMLPath string
}

// Template is a parsed simc profile template with the report section attached.
type Template struct {
	tmpl      *template.Template
	outputDir string
}

// NewTemplate parses a profile template. outputDir is where per-run report
// files land.
func NewTemplate(profile, outputDir string) (*Template, error) {
	tmpl, err := template.New("profile").Parse(profile + outputPart)
	if err != nil {
		return nil, fmt.Errorf("parse simc template: %w", err)
	}
	return &Template{tmpl: tmpl, outputDir: outputDir}, nil
}

// JSONPath returns the report path a run with this output name will write.
func (t *Template) JSONPath(outputName string) string {
	return filepath.Join(t.outputDir, outputName+".json")
}

// HTMLPath returns the html report path for an output name.
func (t *Template) HTMLPath(outputName string) string {
	return filepath.Join(t.outputDir, outputName+".html")
}

// Render produces the simc input text for one run.
func (t *Template) Render(args RenderArgs, outputName string) (string, error) {
	args.JSONPath = t.JSONPath(outputName)
	args.HTMLPath = t.HTMLPath(outputName)

	var b strings.Builder
	if err := t.tmpl.Execute(&b, args); err != nil {
		return "", fmt.Errorf("render simc template: %w", err)
	}
	return b.String(), nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mwhitby/talentbeam/live"
	"github.com/mwhitby/talentbeam/optimizer/allocation"
	"github.com/mwhitby/talentbeam/optimizer/beam"
	"github.com/mwhitby/talentbeam/player"
	"github.com/mwhitby/talentbeam/simc"
	"github.com/mwhitby/talentbeam/store"
	"github.com/mwhitby/talentbeam/talents"
	"github.com/mwhitby/talentbeam/talents/icyveins"
)

// recordingOracle wraps the real oracle to count evaluations and collect rows
// for the parquet export.
type recordingOracle struct {
	inner beam.Oracle
	runID string

	evaluations atomic.Int64
	iteration   atomic.Int64
	seeded      atomic.Bool

	mu   sync.Mutex
	rows []store.EvaluationRow
}

func (r *recordingOracle) Score(ctx context.Context, build beam.Build) (float64, error) {
	dps, err := r.inner.Score(ctx, build)
	r.evaluations.Add(1)
	if err != nil {
		return 0, err
	}

	// iteration tracks the last completed iteration, so everything scored
	// after the seed belongs to the one currently in flight.
	it := r.iteration.Load()
	if !r.seeded.CompareAndSwap(false, true) {
		it++
	}

	row := store.EvaluationRow{
		RunID:        r.runID,
		Iteration:    int32(it),
		TalentString: build.SpecTalents.TalentString(),
		DPS:          dps,
		EvaluatedAt:  time.Now().UnixMilli(),
	}
	if a, ok := build.SpecTalents.(*allocation.Allocation); ok {
		row.PointsSpent = int32(a.TotalSpent())
		row.Budget = int32(a.Budget())
		row.Valid = a.TotalSpent() <= a.Budget()
	}
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
	return dps, nil
}

func (r *recordingOracle) Rows() []store.EvaluationRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]store.EvaluationRow, len(r.rows))
	copy(rows, r.rows)
	return rows
}

type doneMsg struct {
	result beam.Result
	err    error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	updates   chan tea.Msg
	oracle    *recordingOracle
	startTime time.Time

	iteration   int
	beamSize    int
	bestDPS     float64
	bestTalents string
	recent      []string

	done   bool
	result beam.Result
	err    error
}

func initialModel(updates chan tea.Msg, oracle *recordingOracle) model {
	return model{
		updates:   updates,
		oracle:    oracle,
		startTime: time.Now(),
	}
}

func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case beam.Update:
		m.iteration = msg.Iteration
		m.beamSize = msg.BeamSize
		m.bestDPS = msg.BestDPS
		m.bestTalents = msg.BestTalents
		if msg.LastCandidate != "" {
			line := fmt.Sprintf("it %d: %.1f dps  %s", msg.Iteration, msg.LastDPS, truncate(msg.LastCandidate, 80))
			m.recent = append([]string{line}, m.recent...)
			if len(m.recent) > 10 {
				m.recent = m.recent[:10]
			}
		}
		return m, waitForUpdate(m.updates)
	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	evals := m.oracle.evaluations.Load()
	evalsPerMin := float64(evals) / duration.Minutes()
	if duration.Seconds() < 1 {
		evalsPerMin = 0
	}

	s := fmt.Sprintf("Iteration:    %d\n", m.iteration)
	s += fmt.Sprintf("Beam Size:    %d\n", m.beamSize)
	s += fmt.Sprintf("Evaluations:  %d\n", evals)
	s += fmt.Sprintf("Evals/Min:    %.1f\n", evalsPerMin)
	s += fmt.Sprintf("Duration:     %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Best DPS:     %.1f\n", m.bestDPS)
	s += fmt.Sprintf("Best Talents: %s\n\n", truncate(m.bestTalents, 100))

	s += "Recent Candidates:\n"
	for _, line := range m.recent {
		s += line + "\n"
	}

	s += "\nPress q to quit.\n"
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newLogger(tui bool) (*zap.SugaredLogger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if tui {
		// The TUI owns the terminal; logs go to a file instead.
		zcfg.OutputPaths = []string{"optimize.log"}
		zcfg.ErrorOutputPaths = []string{"optimize.log"}
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func loadTree(ctx context.Context, cfg *Config) (*talents.Tree, error) {
	var class *icyveins.Class
	var err error
	if cfg.Tree.URL != "" {
		class, err = icyveins.NewFetcher().Fetch(ctx, cfg.Tree.URL)
	} else {
		class, err = icyveins.LoadFile(cfg.Tree.File)
	}
	if err != nil {
		return nil, err
	}
	spec, ok := class.Specs[cfg.Tree.Spec]
	if !ok {
		return nil, fmt.Errorf("spec %q not present in talent data", cfg.Tree.Spec)
	}
	return icyveins.Convert(spec)
}

func main() {
	cfgPath := flag.String("config", "optimize.yaml", "Path to the run configuration file")
	noTUI := flag.Bool("no-tui", false, "Disable the TUI and log progress to stderr instead")
	listen := flag.String("listen", "", "If set, serve live progress over WebSocket at this address (e.g. :8090)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := newLogger(!*noTUI)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	tree, err := loadTree(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to load talent tree", "error", err)
	}
	log.Infow("talent tree loaded", "spec", cfg.Tree.Spec, "nodes", tree.NumNodes())

	profile := simc.DefaultProfileTemplate
	if cfg.Simc.ProfileFile != "" {
		data, err := os.ReadFile(cfg.Simc.ProfileFile)
		if err != nil {
			log.Fatalw("failed to read simc profile", "error", err)
		}
		profile = string(data)
	}
	tmpl, err := simc.NewTemplate(profile, cfg.Simc.OutputDir)
	if err != nil {
		log.Fatalw("failed to parse simc profile", "error", err)
	}
	runner := simc.NewRunner(simc.Config{
		Executable: cfg.Simc.Executable,
		OutputDir:  cfg.Simc.OutputDir,
		Timeout:    cfg.Simc.Timeout,
	}, tmpl, log)

	oracle := &recordingOracle{
		inner: simc.NewOracle(runner, cfg.Tree.Spec),
		runID: uuid.NewString(),
	}

	seed := cfg.Search.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	log.Infow("search configured",
		"beam_width", cfg.Search.BeamWidth,
		"max_explorations", cfg.Search.MaxExplorations,
		"seed", seed)

	var broadcaster *live.Broadcaster
	if *listen != "" {
		broadcaster = live.NewBroadcaster(log)
		defer broadcaster.Close()
		mux := http.NewServeMux()
		mux.Handle("/ws", broadcaster)
		go func() {
			log.Infow("live progress listening", "addr", *listen)
			if err := http.ListenAndServe(*listen, mux); err != nil {
				log.Warnw("live server stopped", "error", err)
			}
		}()
	}

	updates := make(chan tea.Msg, 64)
	progress := func(u beam.Update) {
		oracle.iteration.Store(int64(u.Iteration))
		if broadcaster != nil {
			broadcaster.Publish(u)
		}
		select {
		case updates <- u:
		default:
		}
	}

	optimizer := beam.New(oracle, beam.Config{
		BeamWidth:                   cfg.Search.BeamWidth,
		MaxExplorationsPerCandidate: cfg.Search.MaxExplorations,
	}, rng, log, beam.WithProgress(progress))

	p := player.Player{Name: cfg.Player.Name, Level: cfg.Player.Level, Race: cfg.Player.Race}
	locked := beam.LockedTrees{
		Class: allocation.Fixed(cfg.Locked.ClassTree),
		Hero:  allocation.Fixed(cfg.Locked.HeroTree),
	}

	var result beam.Result
	var searchErr error
	go func() {
		result, searchErr = optimizer.Search(ctx, tree, p, locked, cfg.BlockList())
		updates <- doneMsg{result: result, err: searchErr}
	}()

	if *noTUI {
		for msg := range updates {
			switch msg := msg.(type) {
			case beam.Update:
				log.Infow("progress",
					"iteration", msg.Iteration,
					"evaluations", msg.Evaluations,
					"best_dps", msg.BestDPS)
			case doneMsg:
				finish(log, cfg, oracle, msg.result, msg.err)
				return
			}
		}
		return
	}

	prog := tea.NewProgram(initialModel(updates, oracle))
	final, err := prog.Run()
	if err != nil {
		log.Fatalw("tui failed", "error", err)
	}
	m := final.(model)
	if !m.done {
		// User quit before the search finished; nothing to report.
		stop()
		flushEvaluations(log, cfg, oracle)
		return
	}
	finish(log, cfg, oracle, m.result, m.err)
}

func finish(log *zap.SugaredLogger, cfg *Config, oracle *recordingOracle, result beam.Result, searchErr error) {
	flushEvaluations(log, cfg, oracle)
	if searchErr != nil {
		log.Fatalw("search failed", "error", searchErr)
	}
	if result.Best == nil {
		fmt.Println("no valid allocation found within budget")
		return
	}
	fmt.Printf("%.1f dps: %s\n", result.DPS, result.Best.TalentString())
}

func flushEvaluations(log *zap.SugaredLogger, cfg *Config, oracle *recordingOracle) {
	rows := oracle.Rows()
	if len(rows) == 0 {
		return
	}
	path, err := store.WriteEvaluationsAtomic(cfg.EvaluationsDir, rows)
	if err != nil {
		log.Warnw("failed to write evaluation log", "error", err)
		return
	}
	log.Infow("evaluation log written", "path", path, "rows", len(rows))
}

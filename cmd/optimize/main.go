// Command optimize searches training hyperparameters with CMA-ES. Every
// candidate trains short ES runs over several seeds and is scored by how far
// the resulting policy drives while staying on the track.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/racer/config"
)

// clock renders d as 1h02m03s, or 2m03s under an hour.
func clock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalLog appends one CSV row per candidate and tracks the incumbent.
type evalLog struct {
	w        *csv.Writer
	f        *os.File
	params   *ParamVector
	maxEvals int
	started  time.Time

	count    int
	best     float64
	bestVals []float64
}

func newEvalLog(path string, params *ParamVector, maxEvals int) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create eval log: %w", err)
	}
	l := &evalLog{
		w:        csv.NewWriter(f),
		f:        f,
		params:   params,
		maxEvals: maxEvals,
		started:  time.Now(),
		best:     1e9,
	}
	header := []string{"eval", "fitness", "laps"}
	for _, s := range params.Specs {
		header = append(header, s.Name)
	}
	if err := l.w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write eval log header: %w", err)
	}
	return l, nil
}

// record logs the clamped values, which are the ones actually trained with.
func (l *evalLog) record(vals []float64, fitness, laps float64) {
	l.count++
	if fitness < l.best {
		l.best = fitness
		l.bestVals = vals
	}

	row := make([]string, 0, 3+len(vals))
	row = append(row, strconv.Itoa(l.count), strconv.FormatFloat(fitness, 'f', 6, 64), strconv.FormatFloat(laps, 'f', 4, 64))
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := l.w.Write(row); err != nil {
		log.Printf("eval log: %v", err)
	}
	l.w.Flush()

	elapsed := time.Since(l.started)
	eta := time.Duration(l.maxEvals-l.count) * (elapsed / time.Duration(l.count))
	fmt.Printf("[%d/%d] laps=%.2f score=%.3f best=%.3f elapsed=%s eta=%s\n",
		l.count, l.maxEvals, laps, -fitness, -l.best, clock(elapsed), clock(eta))
}

func (l *evalLog) Close() error {
	l.w.Flush()
	return l.f.Close()
}

// writeResults stores the best hyperparameters as a config file next to the
// hall of fame holding the policy they produced.
func writeResults(dir, configPath string, params *ParamVector, vals []float64, ev *FitnessEvaluator) {
	fmt.Println("\nBest parameters:")
	for i, s := range params.Specs {
		fmt.Printf("  %-18s %-36s %.6f\n", s.Name, s.Path, vals[i])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("reload config: %v", err)
		return
	}
	params.ApplyToConfig(cfg, vals)
	cfgPath := filepath.Join(dir, "best_config.yaml")
	if err := cfg.WriteYAML(cfgPath); err != nil {
		log.Printf("write best config: %v", err)
	} else {
		fmt.Println("config:", cfgPath)
	}

	hof := ev.BestHallOfFame()
	if hof == nil {
		return
	}
	data, err := hof.MarshalJSON()
	if err != nil {
		log.Printf("marshal hall of fame: %v", err)
		return
	}
	hofPath := filepath.Join(dir, "hall_of_fame.json")
	if err := os.WriteFile(hofPath, data, 0644); err != nil {
		log.Printf("write hall of fame: %v", err)
		return
	}
	fmt.Println("policy:", hofPath)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	generations := flag.Int("generations", 20, "ES generations per training run")
	seeds := flag.Int("seeds", 3, "Training seeds per candidate")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of candidates")
	population := flag.Int("population", 0, "CMA-ES population size (0 = 4 + 1.5*dim)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	switch {
	case *outputDir == "":
		log.Fatal("-output is required")
	case *seeds < 1:
		log.Fatal("-seeds must be at least 1")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	// Training runs log at info; only warnings matter here.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("load config: %v", err)
	}
	base := config.Cfg()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	params := NewParamVector()
	trainSeeds := make([]int64, *seeds)
	for i := range trainSeeds {
		trainSeeds[i] = base.ES.Seed + int64(i)*1000
	}
	ev := NewFitnessEvaluator(ctx, params, *generations, trainSeeds, base)

	dim := params.Dim()
	pop := *population
	if pop == 0 {
		pop = 4 + 3*dim/2
	}

	elog, err := newEvalLog(filepath.Join(*outputDir, "optimize_log.csv"), params, *maxEvals)
	if err != nil {
		log.Fatal(err)
	}
	defer elog.Close()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil {
				return 0
			}
			vals := params.Clamp(params.Denormalize(x))
			fitness := ev.Evaluate(vals)
			elog.record(vals, fitness, ev.LastLaps())
			return fitness
		},
	}
	// Each candidate already trains its seeds in parallel.
	settings := &optimize.Settings{FuncEvaluations: *maxEvals}
	method := &optimize.CmaEsChol{InitStepSize: 0.3, Population: pop}

	fmt.Printf("CMA-ES over %d hyperparameters: population=%d max_evals=%d seeds=%d generations=%d\n",
		dim, pop, *maxEvals, *seeds, *generations)

	result, err := optimize.Minimize(problem, params.Normalize(params.ExtractFromConfig(base)), settings, method)
	if err != nil {
		log.Printf("search stopped: %v", err)
	}

	best := elog.bestVals
	if best == nil {
		if result == nil {
			log.Fatal("no candidates evaluated")
		}
		best = params.Clamp(params.Denormalize(result.X))
	}
	fmt.Printf("\n%d candidates in %s, best score %.3f\n", elog.count, clock(time.Since(elog.started)), -elog.best)

	writeResults(*outputDir, *configPath, params, best, ev)
}

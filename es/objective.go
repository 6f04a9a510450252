package es

// Candidate is one parameter vector to score, expressed as
// Center + Sigma*Noise. A nil Noise means the center itself.
// Center and Noise are shared and must not be modified.
type Candidate struct {
	Center []float64
	Noise  []float64
	Sigma  float64
}

// Materialize writes the candidate's parameters into dst, which must have
// the same length as Center.
func (c Candidate) Materialize(dst []float64) {
	if c.Noise == nil {
		copy(dst, c.Center)
		return
	}
	for i, v := range c.Center {
		dst[i] = v + c.Sigma*c.Noise[i]
	}
}

// Objective produces independent evaluators. Higher returns are better.
type Objective interface {
	NewWorker() (Worker, error)
}

// Worker scores candidates. A Worker is used by one goroutine at a time and
// owns whatever mutable state the evaluation needs.
type Worker interface {
	Evaluate(c Candidate, seed int64) (float64, error)
}

// ObjectiveFunc adapts a pure function of the parameters to an Objective.
// The function must be safe for concurrent use.
type ObjectiveFunc func(params []float64) float64

// NewWorker implements Objective.
func (f ObjectiveFunc) NewWorker() (Worker, error) {
	return &funcWorker{fn: f}, nil
}

type funcWorker struct {
	fn  ObjectiveFunc
	buf []float64
}

func (w *funcWorker) Evaluate(c Candidate, _ int64) (float64, error) {
	if len(w.buf) != len(c.Center) {
		w.buf = make([]float64, len(c.Center))
	}
	c.Materialize(w.buf)
	return w.fn(w.buf), nil
}

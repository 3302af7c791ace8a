package app

// lbfgs keeps the bounded (s, y) history of the two-loop recursion.
type lbfgs struct {
	memory int
	s, y   [][]float64
	rho    []float64
}

func newLBFGS(memory int) *lbfgs {
	return &lbfgs{memory: memory}
}

// push stores a pair only when the curvature condition s·y > 0 holds, so
// the implied inverse Hessian stays positive definite. It reports whether
// the pair was kept.
func (h *lbfgs) push(s, y []float64) bool {
	sy := dot(s, y)
	if !(sy > 0) {
		return false
	}
	if len(h.s) == h.memory {
		h.s, h.y, h.rho = h.s[1:], h.y[1:], h.rho[1:]
	}
	h.s = append(h.s, s)
	h.y = append(h.y, y)
	h.rho = append(h.rho, 1/sy)
	return true
}

func (h *lbfgs) reset() {
	h.s, h.y, h.rho = nil, nil, nil
}

func (h *lbfgs) len() int { return len(h.s) }

// direction returns -H*g. With no history it returns nil.
func (h *lbfgs) direction(g []float64) []float64 {
	k := len(h.s)
	if k == 0 {
		return nil
	}

	q := append([]float64(nil), g...)
	alpha := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		alpha[i] = h.rho[i] * dot(h.s[i], q)
		axpy(-alpha[i], h.y[i], q)
	}

	// H0 = gamma*I with gamma = s·y / y·y of the newest pair.
	last := k - 1
	gamma := 1 / (h.rho[last] * dot(h.y[last], h.y[last]))
	scale(gamma, q)

	for i := 0; i < k; i++ {
		beta := h.rho[i] * dot(h.y[i], q)
		axpy(alpha[i]-beta, h.s[i], q)
	}

	scale(-1, q)
	return q
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// axpy computes y += a*x.
func axpy(a float64, x, y []float64) {
	for i := range x {
		y[i] += a * x[i]
	}
}

func scale(a float64, x []float64) {
	for i := range x {
		x[i] *= a
	}
}

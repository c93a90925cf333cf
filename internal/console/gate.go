package console

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned while another lifecycle request is outstanding.
var ErrBusy = errors.New("console: another period operation is in progress")

// Gate allows one lifecycle request at a time. It stands in for the
// disabled button of a dashboard.
type Gate struct {
	mu sync.Mutex
	op string
}

// Begin claims the gate for op. The returned func releases it.
func (g *Gate) Begin(op string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op != "" {
		return nil, fmt.Errorf("%w (%s)", ErrBusy, g.op)
	}
	g.op = op
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.op = ""
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports the operation holding the gate.
func (g *Gate) Busy() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.op, g.op != ""
}

// Package clock abstrae la hora actual para poder testear código que depende
// del tiempo (armado de requests, vencimiento de tickets) con un reloj fijo.
package clock

import (
	"sync"
	"time"
)

// Clock devuelve la hora actual. Producción usa Real(); los tests usan NewFake.
type Clock interface {
	Now() time.Time
}

// Real devuelve un Clock respaldado por el paquete time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fake es un reloj controlado manualmente. Seguro para uso concurrente.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake crea un reloj detenido en t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance mueve el reloj d hacia adelante (o atrás si d < 0).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set fija el reloj en t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

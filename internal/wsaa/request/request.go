// Package request arma el loginTicketRequest (TRA) que se firma y se envía
// al WSAA. Es puro: sólo depende del reloj inyectado y de sus argumentos.
package request

import (
	"encoding/xml"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
)

// Formatos de timestamp acordados con el WSAA.
const (
	// LayoutLocal es el formato usado históricamente (sin zona horaria,
	// interpretado por la autoridad como hora de Argentina).
	LayoutLocal = "2006-01-02T15:04:05"
	// LayoutZoned incluye el offset explícito (ej: 2024-06-10T03:33:20-03:00).
	LayoutZoned = "2006-01-02T15:04:05-07:00"

	// DefaultLocation es la zona horaria en la que se expresan los timestamps.
	DefaultLocation = "America/Argentina/Buenos_Aires"

	documentVersion = "1.0"
)

var (
	ErrEmptyService  = errors.New("request: service id is required")
	ErrInvalidWindow = errors.New("request: validity window must be positive")
	ErrUnknownLayout = errors.New("request: unknown time layout")
)

// LoginTicketRequest es inmutable una vez construido.
type LoginTicketRequest struct {
	ServiceID      string
	UniqueID       uint32
	GenerationTime time.Time
	ExpirationTime time.Time

	layout string
	loc    *time.Location
}

// Layout devuelve el formato de timestamp con el que se serializa.
func (r *LoginTicketRequest) Layout() string { return r.layout }

type ltrXML struct {
	XMLName xml.Name `xml:"loginTicketRequest"`
	Version string   `xml:"version,attr"`
	Header  struct {
		UniqueID       uint32 `xml:"uniqueId"`
		GenerationTime string `xml:"generationTime"`
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Service string `xml:"service"`
}

// Marshal serializa el request con orden de campos y formato estables.
func (r *LoginTicketRequest) Marshal() ([]byte, error) {
	var doc ltrXML
	doc.Version = documentVersion
	doc.Header.UniqueID = r.UniqueID
	doc.Header.GenerationTime = r.GenerationTime.In(r.loc).Format(r.layout)
	doc.Header.ExpirationTime = r.ExpirationTime.In(r.loc).Format(r.layout)
	doc.Service = r.ServiceID

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	out = append(out, body...)
	return out, nil
}

// Builder construye LoginTicketRequests. Es seguro para uso concurrente.
type Builder struct {
	clock    clock.Clock
	layout   string
	loc      *time.Location
	backdate time.Duration

	mu   sync.Mutex
	last uint32
}

// Option configura un Builder.
type Option func(*Builder)

// WithClock inyecta el reloj (tests).
func WithClock(c clock.Clock) Option { return func(b *Builder) { b.clock = c } }

// WithLayout fija el formato de timestamp (LayoutLocal o LayoutZoned).
func WithLayout(layout string) Option { return func(b *Builder) { b.layout = layout } }

// WithLocation fija la zona horaria en la que se formatean los timestamps.
func WithLocation(loc *time.Location) Option { return func(b *Builder) { b.loc = loc } }

// WithBackdate corre generationTime hacia atrás para tolerar relojes del
// WSAA levemente atrasados respecto del nuestro.
func WithBackdate(d time.Duration) Option { return func(b *Builder) { b.backdate = d } }

// NewBuilder crea un Builder con LayoutLocal, reloj real y la zona de Buenos
// Aires (UTC si la base de zonas horarias no está disponible).
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		clock:  clock.Real(),
		layout: LayoutLocal,
	}
	for _, o := range opts {
		o(b)
	}
	if b.loc == nil {
		b.loc = DefaultLoc()
	}
	return b
}

// DefaultLoc carga DefaultLocation, con fallback a UTC.
func DefaultLoc() *time.Location {
	loc, err := time.LoadLocation(DefaultLocation)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseLayout traduce el valor de configuración ("local" | "zoned" | layout
// explícito) a un layout de time.
func ParseLayout(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "local":
		return LayoutLocal, nil
	case "zoned", "offset":
		return LayoutZoned, nil
	}
	if v == LayoutLocal || v == LayoutZoned {
		return v, nil
	}
	return "", ErrUnknownLayout
}

// Build arma un request nuevo para serviceID válido por window.
// uniqueId es el epoch en segundos y nunca decrece dentro del proceso; dos
// builds en el mismo segundo comparten uniqueId.
func (b *Builder) Build(serviceID string, window time.Duration) (*LoginTicketRequest, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, ErrEmptyService
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	now := b.clock.Now().Truncate(time.Second)
	gen := now.Add(-b.backdate)

	return &LoginTicketRequest{
		ServiceID:      serviceID,
		UniqueID:       b.nextUniqueID(now),
		GenerationTime: gen,
		ExpirationTime: gen.Add(window),
		layout:         b.layout,
		loc:            b.loc,
	}, nil
}

func (b *Builder) nextUniqueID(now time.Time) uint32 {
	id := uint32(now.Unix())
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < b.last {
		// reloj corrido hacia atrás (NTP): mantenemos el último emitido
		id = b.last
	}
	b.last = id
	return id
}

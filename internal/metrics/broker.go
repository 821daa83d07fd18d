package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del broker de tickets. Viven en un paquete aparte para que broker
// y http puedan importarlas sin ciclos.

var (
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsaa_ticket_cache_lookups_total",
		Help: "Consultas al token store por resultado (hit, miss, error)",
	}, []string{"service", "result"})

	Renewals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsaa_ticket_renewals_total",
		Help: "Renovaciones de ticket por resultado (ok, cached, signing, transport, protocol, cache, error)",
	}, []string{"service", "result"})

	RenewalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wsaa_ticket_renewal_duration_seconds",
		Help:    "Duración de una renovación completa (firma + LoginCms + store)",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"service"})

	CoalescedWaiters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsaa_ticket_coalesced_waiters_total",
		Help: "Llamadas que recibieron el resultado de una renovación compartida",
	}, []string{"service"})

	TicketExpiry = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wsaa_ticket_expiry_timestamp_seconds",
		Help: "expirationTime (unix) del último ticket emitido por la autoridad",
	}, []string{"service"})
)

// RegisterBroker registra las métricas del broker en reg (o el default si es nil).
func RegisterBroker(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CacheLookups, Renewals, RenewalLatency, CoalescedWaiters, TicketExpiry} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

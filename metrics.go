// Copyright 2026 The Mcvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcvisor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports instance state and operator actions to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	status    *prometheus.GaugeVec
	players   *prometheus.GaugeVec
	instances prometheus.Gauge
	actions   *prometheus.CounterVec
	sessions  prometheus.Gauge
}

// NewMetrics returns collectors registered under namespace, alongside the
// standard process and Go runtime collectors.
func NewMetrics(namespace string) *Metrics {
	mt := &Metrics{registry: prometheus.NewRegistry()}
	mt.status = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_status",
			Help:      "Instance status (0 stopped, 1 busy, 2 running).",
		},
		[]string{"instance"},
	)
	mt.players = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_players",
			Help:      "Players online at the last poll.",
		},
		[]string{"instance"},
	)
	mt.instances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Number of known instances.",
		},
	)
	mt.actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Operator actions by outcome.",
		},
		[]string{"action", "result"},
	)
	mt.sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected operator sessions.",
		},
	)
	mt.registry.MustRegister(
		mt.status, mt.players, mt.instances, mt.actions, mt.sessions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return mt
}

// Registry returns the underlying Prometheus registry.
func (mt *Metrics) Registry() *prometheus.Registry {
	return mt.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (mt *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(mt.registry, promhttp.HandlerOpts{})
}

func (mt *Metrics) observe(i *Instance) {
	if mt == nil {
		return
	}
	mt.status.WithLabelValues(i.name).Set(float64(i.status()))
	mt.players.WithLabelValues(i.name).Set(float64(i.players))
}

func (mt *Metrics) forget(name string) {
	if mt == nil {
		return
	}
	mt.status.DeleteLabelValues(name)
	mt.players.DeleteLabelValues(name)
}

func (mt *Metrics) setInstances(n int) {
	if mt != nil {
		mt.instances.Set(float64(n))
	}
}

// Action counts one operator action; result is typically "ok", "denied"
// or "failed".
func (mt *Metrics) Action(action, result string) {
	if mt != nil {
		mt.actions.WithLabelValues(action, result).Inc()
	}
}

// SessionOpened and SessionClosed track connected operators.
func (mt *Metrics) SessionOpened() {
	if mt != nil {
		mt.sessions.Inc()
	}
}

func (mt *Metrics) SessionClosed() {
	if mt != nil {
		mt.sessions.Dec()
	}
}

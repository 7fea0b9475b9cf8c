package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/vacancy-crawler/internal/progress"
)

// PrometheusSink exports run progress as Prometheus metrics.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runRunning   prometheus.Gauge
	runDuration  *prometheus.HistogramVec
	runCompleted prometheus.Gauge
	runTotal     prometheus.Gauge

	sitesScraped *prometheus.CounterVec
	linksFound   prometheus.Counter
	siteDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vacancy_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacancy_runs_finished_total",
			Help: "Total scrape runs finished, partitioned by result.",
		}, []string{"result"}),
		runRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vacancy_run_in_progress",
			Help: "1 while a scrape run is active.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacancy_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		runCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vacancy_run_sites_completed",
			Help: "Sites completed in the current or last run.",
		}),
		runTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vacancy_run_sites_total",
			Help: "Sites scheduled in the current or last run.",
		}),
		sitesScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacancy_sites_scraped_total",
			Help: "Site scrape attempts partitioned by result and error kind.",
		}, []string{"result", "error_kind"}),
		linksFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vacancy_links_found_total",
			Help: "Vacancy links extracted by successful site scrapes.",
		}),
		siteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacancy_site_duration_seconds",
			Help:    "Site scrape duration partitioned by result.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runRunning,
		s.runDuration,
		s.runCompleted,
		s.runTotal,
		s.sitesScraped,
		s.linksFound,
		s.siteDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runRunning.Set(1)
		s.runCompleted.Set(0)
		s.runTotal.Set(float64(evt.Total))
	case progress.StageBatchDone:
		s.runCompleted.Set(float64(evt.Completed))
		s.runTotal.Set(float64(evt.Total))
	case progress.StageRunDone, progress.StageRunFailed:
		result := evt.Result()
		s.runsFinished.WithLabelValues(result).Inc()
		s.runRunning.Set(0)
		s.runCompleted.Set(float64(evt.Completed))
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
	case progress.StageSiteDone:
		result := evt.Result()
		kind := evt.ErrorKind
		if kind == "" {
			kind = "none"
		}
		s.sitesScraped.WithLabelValues(result, kind).Inc()
		if evt.Success {
			s.linksFound.Add(float64(evt.Links))
		}
		if evt.Dur > 0 {
			s.siteDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

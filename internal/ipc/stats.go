package ipc

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StatsReporter periodically logs the deltas of a client's call statistics.
type StatsReporter struct {
	sched  *cron.Cron
	client *Client
	log    *logrus.Entry
	last   Stats
}

// NewStatsReporter schedules reporting with a cron spec such as "@every 30s".
func NewStatsReporter(client *Client, spec string, log *logrus.Entry) (*StatsReporter, error) {
	if log == nil {
		log = logrus.WithField("component", "ipc-stats")
	}
	r := &StatsReporter{
		sched:  cron.New(),
		client: client,
		log:    log,
	}
	if _, err := r.sched.AddFunc(spec, r.report); err != nil {
		return nil, fmt.Errorf("ipc: stats schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *StatsReporter) Start() { r.sched.Start() }

// Stop halts the schedule and waits for a running report to finish.
func (r *StatsReporter) Stop() { <-r.sched.Stop().Done() }

func (r *StatsReporter) report() {
	s := r.client.Stats()
	r.log.WithFields(logrus.Fields{
		"pending":   s.Pending,
		"calls":     s.Calls - r.last.Calls,
		"succeeded": s.Succeeded - r.last.Succeeded,
		"remote":    s.Remote - r.last.Remote,
		"timeouts":  s.Timeouts - r.last.Timeouts,
		"orphans":   s.Orphans - r.last.Orphans,
	}).Info("ipc client stats")
	r.last = s
}

// Package filter classifies proxied connections and decides, per request,
// whether to forward it or answer with a block page.
package filter

import (
	"time"

	"github.com/haukened/rr-filter/internal/filter/common/clock"
	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/common/utils"
	"github.com/haukened/rr-filter/internal/filter/domain"
)

// RequestFilter matches full request URLs against the index.
type RequestFilter struct {
	index    Index
	counter  Counter
	blockLog BlockLog
	page     *BlockPage
	clock    clock.Clock
	metrics  Metrics
	logger   log.Logger
}

type RequestFilterOptions struct {
	Index    Index
	Counter  Counter
	BlockLog BlockLog
	Page     *BlockPage
	Clock    clock.Clock
	Metrics  Metrics
	Logger   log.Logger
}

func NewRequestFilter(opts RequestFilterOptions) *RequestFilter {
	f := &RequestFilter{
		index:    opts.Index,
		counter:  opts.Counter,
		blockLog: opts.BlockLog,
		page:     opts.Page,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if f.blockLog == nil {
		f.blockLog = nopBlockLog{}
	}
	if f.clock == nil {
		f.clock = clock.RealClock{}
	}
	if f.metrics == nil {
		f.metrics = nopMetrics{}
	}
	if f.logger == nil {
		f.logger = log.NewNoopLogger()
	}
	return f
}

// Decide counts the request exactly once, then blocks it when its URL
// contains a blocklist entry. The block log write happens asynchronously and
// cannot change the outcome.
func (f *RequestFilter) Decide(req domain.Request) domain.FilterDecision {
	if f.counter != nil {
		f.counter.Increment()
	}

	entry, blocked := "", false
	if f.index != nil {
		entry, blocked = f.index.Match(req.URL)
	}
	if !blocked {
		f.metrics.RequestFiltered(domain.ActionAllow)
		return domain.Allow()
	}

	now := f.clock.Now()
	host := req.Host
	if host == "" {
		host = utils.HostFromURL(req.URL)
	}
	reason := "matched " + entry
	body, err := f.page.RenderString(BlockPageData{
		URL:       req.URL,
		Host:      host,
		Reason:    reason,
		Timestamp: now.Format(time.RFC3339),
	})
	if err != nil {
		f.logger.Warn(map[string]any{"url": req.URL, "error": err}, "Block page template failed, using default")
	}

	f.blockLog.Append(now, req.URL)
	f.metrics.RequestFiltered(domain.ActionBlock)
	f.logger.Info(map[string]any{
		"url":    req.URL,
		"host":   host,
		"client": req.ClientAddr,
		"entry":  entry,
	}, "Blocked")

	d := domain.Block(reason, body)
	d.MatchedEntry = entry
	return d
}

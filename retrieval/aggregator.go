package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/metrics"
	"github.com/higress-group/expertbot/retriever"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a fan-out.
type Result struct {
	Documents []retriever.Document
	Branches  int
	Failed    int
	// Err aggregates the branch failures; it is informational only.
	Err error
}

// Aggregator searches every query concurrently and concatenates the
// successful branches in query order. A failed branch never fails the whole.
type Aggregator struct {
	Client    retriever.Client
	Timeout   time.Duration
	MaxFanout int
	log       *logger.Logger
}

func NewAggregator(c retriever.Client, timeout time.Duration, maxFanout int, log *logger.Logger) *Aggregator {
	return &Aggregator{Client: c, Timeout: timeout, MaxFanout: maxFanout, log: log.Named("aggregator")}
}

// Gather waits for every branch before returning.
func (a *Aggregator) Gather(ctx context.Context, queries []string, alias string) Result {
	var (
		mu       sync.Mutex
		failures *multierror.Error
		branches = make([][]retriever.Document, len(queries))
		failed   int
	)

	g := new(errgroup.Group)
	if a.MaxFanout > 0 {
		g.SetLimit(a.MaxFanout)
	}
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			callCtx := ctx
			if a.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, a.Timeout)
				defer cancel()
			}
			start := time.Now()
			docs, err := a.Client.Search(callCtx, retriever.Request{Query: q, Alias: alias})
			metrics.ObserveRetriever(a.Client.Type(), start, len(docs), err)
			if err != nil {
				a.log.Warnf("%s search failed for query %q: %v", a.Client.Type(), q, err)
				mu.Lock()
				failed++
				failures = multierror.Append(failures, err)
				mu.Unlock()
				return nil
			}
			a.log.Debugf("%s returned %d docs in %s for query %q", a.Client.Type(), len(docs), time.Since(start), q)
			branches[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Branches: len(queries), Failed: failed, Err: failures.ErrorOrNil()}
	for _, docs := range branches {
		res.Documents = append(res.Documents, docs...)
	}
	if res.Err != nil {
		a.log.Warnf("%d of %d retrieval branches failed", failed, len(queries))
	}
	a.log.Infof("gathered %d candidates from %d branches", len(res.Documents), len(queries)-failed)
	return res
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/domain/repository"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 10 * time.Second
)

var ErrPollerNotRunning = fmt.Errorf("poller is not running")

// PollResult は1回のポーリングの結果。Errがnilなら Incidents が新しいスナップショット
type PollResult struct {
	Seq       uint64
	Incidents []entity.Incident
	Err       error
	Status    entity.Status
}

type PollListener interface {
	OnPoll(ctx context.Context, result PollResult)
}

type PollListenerFunc func(ctx context.Context, result PollResult)

func (f PollListenerFunc) OnPoll(ctx context.Context, result PollResult) {
	f(ctx, result)
}

type PollerOption func(*Poller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPollTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPollListener(l PollListener) PollerOption {
	return func(p *Poller) {
		p.listeners = append(p.listeners, l)
	}
}

// Poller は一定間隔でインシデントAPIを取得し、Storeに反映する
type Poller struct {
	source     repository.IncidentSource
	normalizer *incident.Normalizer
	store      *incident.Store
	interval   time.Duration
	timeout    time.Duration
	listeners  []PollListener

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup

	inFlight atomic.Int32
	issued   atomic.Uint64

	applyMu sync.Mutex
	applied uint64
}

func NewPoller(source repository.IncidentSource, normalizer *incident.Normalizer, store *incident.Store, opts ...PollerOption) *Poller {
	if normalizer == nil {
		normalizer = incident.NewNormalizer()
	}
	p := &Poller{
		source:     source,
		normalizer: normalizer,
		store:      store,
		interval:   DefaultPollInterval,
		timeout:    DefaultPollTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start は直ちに1回取得し、その後 interval ごとに取得する。
// 戻り値の関数は何度呼んでもよく、実行中の取得が終わるまで待つ
func (p *Poller) Start(ctx context.Context) (stop func()) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return p.stop
	}
	ctx, cancel := context.WithCancel(ctx)
	p.ctx = ctx
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	p.issue()

	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p.inFlight.Load() > 0 {
					slog.Debug("skip poll, previous request is still in flight")
					continue
				}
				p.issue()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(p.stop)
	}
}

func (p *Poller) stop() {
	p.mu.Lock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Refresh は実行中の取得があっても直ちに1回取得する
func (p *Poller) Refresh() error {
	if !p.issue() {
		return ErrPollerNotRunning
	}
	return nil
}

// InFlight は実行中の取得数を返す
func (p *Poller) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Poller) issue() bool {
	p.mu.Lock()
	ctx := p.ctx
	if ctx == nil || p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.inFlight.Add(1)
	seq := p.issued.Add(1)
	p.mu.Unlock()

	p.store.MarkLoading()
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)
		p.poll(ctx, seq)
	}()
	return true
}

func (p *Poller) poll(ctx context.Context, seq uint64) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := p.source.FetchIncidents(reqCtx)
	// 停止中の結果は反映しない
	if ctx.Err() != nil {
		return
	}

	var incidents []entity.Incident
	if err == nil {
		incidents = p.normalizer.Normalize(payload)
	}

	result, ok := p.apply(seq, incidents, err)
	if !ok {
		slog.Debug("discard stale poll result", slog.Uint64("seq", seq))
		return
	}
	if err != nil {
		slog.Error("Failed to fetch incidents", slog.Uint64("seq", seq), slog.Any("err", err))
	} else {
		slog.Debug("incidents updated", slog.Uint64("seq", seq), slog.Int("count", len(incidents)))
	}

	for _, l := range p.listeners {
		l.OnPoll(ctx, result)
	}
}

func (p *Poller) apply(seq uint64, incidents []entity.Incident, err error) (PollResult, bool) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	if seq < p.applied {
		return PollResult{}, false
	}
	p.applied = seq

	if err != nil {
		p.store.MarkFailure(err)
	} else {
		p.store.ReplaceSnapshot(incidents)
	}
	return PollResult{
		Seq:       seq,
		Incidents: incidents,
		Err:       err,
		Status:    p.store.Status(),
	}, true
}

// ArchiveListener は成功したスナップショットをアーカイブに保存する。
// 前回保存したものと同じ内容なら書き込まない
type ArchiveListener struct {
	archive repository.IncidentArchive

	mu   sync.Mutex
	last string
}

func NewArchiveListener(archive repository.IncidentArchive) *ArchiveListener {
	return &ArchiveListener{archive: archive}
}

func (l *ArchiveListener) OnPoll(ctx context.Context, result PollResult) {
	if result.Err != nil || len(result.Incidents) == 0 {
		return
	}
	encoded, err := json.Marshal(result.Incidents)
	if err != nil {
		slog.Error("Failed to encode incidents", slog.Any("err", err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if string(encoded) == l.last {
		return
	}
	if err := l.archive.SaveIncidents(ctx, result.Incidents); err != nil {
		// 失敗したら次回も同じ内容で再試行する
		slog.Error("Failed to archive incidents", slog.Int("count", len(result.Incidents)), slog.Any("err", err))
		return
	}
	l.last = string(encoded)
}

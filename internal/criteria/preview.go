package criteria

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Izone425/allowancev2/internal/domain"
)

var tracer = otel.Tracer("allowance-criteria")

// EmployeeSource supplies the candidate population for an eligibility
// preview. The evaluator needs the relevant population as a whole; paging is
// the source's concern.
type EmployeeSource interface {
	FetchEmployees(ctx context.Context, tenantID string, filter domain.EmployeeFilter) ([]*domain.Employee, error)
}

// DefaultDebounce is the quiet window applied when none is configured.
// Rapid successive edits coalesce into a single evaluation.
const DefaultDebounce = 400 * time.Millisecond

// Previewer turns criteria edits into eligibility previews with
// last-request-wins semantics: each request supersedes the previous one, the
// superseded request's context is cancelled, and a response that is no
// longer the latest is discarded rather than raced.
type Previewer struct {
	source   EmployeeSource
	debounce time.Duration

	mu        sync.Mutex
	seq       uint64
	cancel    context.CancelFunc
	timer     *time.Timer
	latest    *domain.PreviewResult
	latestRev uint64
	hasLatest bool
}

// NewPreviewer creates a previewer over the given population source.
func NewPreviewer(source EmployeeSource, debounce time.Duration) *Previewer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Previewer{source: source, debounce: debounce}
}

// PreviewNow evaluates the set against the current population immediately,
// with no debounce. Used by the HTTP preview endpoint, where each request is
// already a discrete unit.
func (p *Previewer) PreviewNow(ctx context.Context, tenantID, templateID string, set *domain.CriteriaSet) (*domain.PreviewResult, error) {
	ctx, span := tracer.Start(ctx, "criteria.preview")
	defer span.End()
	span.SetAttributes(
		attribute.String("template.id", templateID),
		attribute.Int("criteria.rules", set.RuleCount()),
	)

	population, err := p.source.FetchEmployees(ctx, tenantID, domain.EmployeeFilter{})
	if err != nil {
		return nil, err
	}
	return EvaluateAll(ctx, set, population)
}

// Request schedules a preview for the given criteria snapshot after the
// quiet window. revision is the builder revision the snapshot was taken at;
// it travels with the result so callers can discard stale deliveries. The
// callback fires at most once, and only if no newer request has been issued
// by then.
func (p *Previewer) Request(ctx context.Context, tenantID, templateID string, set *domain.CriteriaSet, revision uint64, deliver func(*domain.PreviewResult, uint64, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	seq := p.seq

	// Supersede any in-flight request.
	if p.cancel != nil {
		p.cancel()
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.timer = time.AfterFunc(p.debounce, func() {
		p.run(runCtx, seq, tenantID, templateID, set, revision, deliver)
	})
}

func (p *Previewer) run(ctx context.Context, seq uint64, tenantID, templateID string, set *domain.CriteriaSet, revision uint64, deliver func(*domain.PreviewResult, uint64, error)) {
	if !p.isLatest(seq) || ctx.Err() != nil {
		return
	}

	result, err := p.PreviewNow(ctx, tenantID, templateID, set)

	p.mu.Lock()
	stale := seq != p.seq || ctx.Err() != nil
	if !stale && err == nil {
		p.latest = result
		p.latestRev = revision
		p.hasLatest = true
	}
	p.mu.Unlock()

	if stale {
		return
	}
	deliver(result, revision, err)
}

func (p *Previewer) isLatest(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return seq == p.seq
}

// Latest returns the most recent delivered result and the revision it was
// computed for.
func (p *Previewer) Latest() (*domain.PreviewResult, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.latestRev, p.hasLatest
}

// Invalidate drops the cached result, e.g. after a criteria edit.
func (p *Previewer) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = nil
	p.latestRev = 0
	p.hasLatest = false
}

// Close cancels any pending or in-flight preview. No delivery happens after
// Close returns.
func (p *Previewer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++ // orphan whatever was scheduled
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

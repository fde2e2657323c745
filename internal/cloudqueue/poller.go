package cloudqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/transport/osprint"
	"github.com/printbridge/agent/internal/transport/tcp"
)

// DefaultPollInterval and DefaultBatchLimit are the poller's defaults:
// poll every second, claim up to 20 queued jobs per poll.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultBatchLimit   = 20
)

// MaxPayloadBytes bounds a single job's print payload, mirroring
// MaxFrameBytes in internal/wsserver: a job whose payload is larger fails
// with payload_too_large before it reaches a transport. The check runs on
// the payload the store has already decoded, so it does not limit how much
// is read from the store.
const MaxPayloadBytes = 8 << 20

// Poller repeatedly polls a DocumentStore for queued jobs belonging to one
// restaurant, claims and dispatches them to the LAN/OS-printer transports,
// and reports the outcome back.
type Poller struct {
	store        DocumentStore
	restaurantID string
	deviceID     string
	deviceName   string
	log          zerolog.Logger

	mu         sync.Mutex
	processing bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewPoller builds a Poller for restaurantID, identifying claimed jobs with
// deviceID/deviceName.
func NewPoller(store DocumentStore, restaurantID, deviceID, deviceName string, log zerolog.Logger) *Poller {
	return &Poller{
		store:        store,
		restaurantID: restaurantID,
		deviceID:     deviceID,
		deviceName:   deviceName,
		log:          log.With().Str("component", "cloudqueue").Str("restaurantId", restaurantID).Logger(),
	}
}

// Start begins polling every interval (DefaultPollInterval if zero) until
// Stop is called. Start is idempotent: calling it again while already
// running is a no-op.
func (p *Poller) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, interval)
}

// Stop cancels future polling ticks. A poll already in flight is allowed to
// finish; Stop blocks until it does.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs a single poll pass, serialized by the processing flag so
// overlapping ticks (a slow poll outlasting the interval) never run
// concurrently.
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	if p.processing {
		p.mu.Unlock()
		return
	}
	p.processing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.processing = false
		p.mu.Unlock()
	}()

	jobs, err := p.store.ListQueued(ctx, CollectionPath(p.restaurantID), DefaultBatchLimit)
	if err != nil {
		p.log.Warn().Err(err).Msg("list queued jobs failed")
		return
	}
	if len(jobs) == 0 {
		return
	}

	for _, job := range jobs {
		p.claimAndRun(ctx, job)
	}

	// A full batch may mean more work is waiting; drain it shortly rather
	// than waiting out the rest of the tick interval.
	if len(jobs) >= DefaultBatchLimit {
		p.wg.Add(1)
		time.AfterFunc(500*time.Millisecond, func() {
			defer p.wg.Done()
			if ctx.Err() != nil {
				return // stopped while the drain was pending
			}
			p.pollOnce(ctx)
		})
	}
}

// claimAndRun claims job (read-then-conditional-patch), dispatches it to the
// appropriate transport, and reports the outcome.
func (p *Poller) claimAndRun(ctx context.Context, job model.Job) {
	docPath := DocPath(p.restaurantID, job.ID)

	current, found, err := p.store.Get(ctx, docPath)
	if err != nil || !found || current.Status != model.JobQueued {
		return // already claimed by another device, or vanished
	}

	now := time.Now().UTC()
	claim := map[string]any{
		"status":        string(model.JobPrinting),
		"claimedBy":     p.deviceID,
		"claimedByName": p.deviceName,
		"claimedAt":     now,
		"attempts":      current.Attempts + 1,
	}
	mask := []string{"status", "claimedBy", "claimedByName", "claimedAt", "attempts"}
	if err := p.store.Patch(ctx, docPath, claim, mask); err != nil {
		p.log.Warn().Err(err).Str("jobId", job.ID).Msg("claim failed")
		return
	}

	job.Status = model.JobPrinting
	job.ClaimedBy = p.deviceID
	job.ClaimedByName = p.deviceName
	job.ClaimedAt = now
	job.Attempts = current.Attempts + 1

	dispatchErr, retryable := p.dispatchSafe(ctx, job)
	p.report(ctx, docPath, job, dispatchErr, retryable)
}

// dispatchSafe wraps dispatch with a panic boundary so one malformed job
// can't take down the poll loop for every other queued job.
func (p *Poller) dispatchSafe(ctx context.Context, job model.Job) (err error, retryable bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("jobId", job.ID).Msg("dispatch panicked")
			err, retryable = fmt.Errorf("internal_error"), false
		}
	}()
	return p.dispatch(ctx, job)
}

// dispatch routes job to the transport named by its target kind. Missing
// subfields or an unrecognized kind are non-retryable.
func (p *Poller) dispatch(ctx context.Context, job model.Job) (err error, retryable bool) {
	if len(job.Payload) > MaxPayloadBytes {
		return fmt.Errorf("payload_too_large"), false
	}

	switch job.Target.Kind {
	case model.TargetLAN:
		if job.Target.IP == "" {
			return fmt.Errorf("no_lan_ip"), false
		}
		port := job.Target.Port
		if port == 0 {
			port = model.DefaultLANPort
		}
		if err := tcp.Print(ctx, job.Target.IP, port, job.Payload); err != nil {
			return err, true
		}
		return nil, false
	case model.TargetOSPrinter:
		if job.Target.PrinterName == "" {
			return fmt.Errorf("no_printer_name"), false
		}
		if err := osprint.Print(ctx, job.Target.PrinterName, job.Payload); err != nil {
			return err, true
		}
		return nil, false
	default:
		return fmt.Errorf("unknown_target"), false
	}
}

// report writes the outcome back to the store: success marks the job
// printed; a retryable failure clears the claim and re-queues the job with
// an incremented attempt count until MaxAttempts is reached, at which
// point it is marked failed.
func (p *Poller) report(ctx context.Context, docPath string, job model.Job, dispatchErr error, retryable bool) {
	if dispatchErr == nil {
		fields := map[string]any{
			"status":    string(model.JobPrinted),
			"printedAt": time.Now().UTC(),
			"error":     nil,
		}
		mask := []string{"status", "printedAt", "error"}
		if err := p.store.Patch(ctx, docPath, fields, mask); err != nil {
			p.log.Warn().Err(err).Str("jobId", job.ID).Msg("report printed failed")
		}
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = model.DefaultMaxAttempts
	}

	if retryable && job.Attempts < maxAttempts {
		fields := map[string]any{
			"status":        string(model.JobQueued),
			"error":         "Retry: " + dispatchErr.Error(),
			"claimedBy":     nil,
			"claimedByName": nil,
			"claimedAt":     nil,
		}
		mask := []string{"status", "error", "claimedBy", "claimedByName", "claimedAt"}
		if err := p.store.Patch(ctx, docPath, fields, mask); err != nil {
			p.log.Warn().Err(err).Str("jobId", job.ID).Msg("report retry failed")
		}
		return
	}

	fields := map[string]any{
		"status": string(model.JobFailed),
		"error":  dispatchErr.Error(),
	}
	mask := []string{"status", "error"}
	if err := p.store.Patch(ctx, docPath, fields, mask); err != nil {
		p.log.Warn().Err(err).Str("jobId", job.ID).Msg("report failed failed")
	}
}

// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bharat-parihar/ARC-Hawk/audit"
	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

// DefaultWorkers is the number of locations masked concurrently.
const DefaultWorkers = 4

// historySize bounds the runs kept for lookup.
const historySize = 100

// Errors returned before any location is touched.
var (
	ErrNoTargets            = errors.New("no masking targets")
	ErrConfirmationRequired = errors.New("masking run requires confirmation")
	ErrTooManyFindings      = errors.New("too many findings for one run")
	ErrRunNotFound          = errors.New("masking run not found")
	ErrRollbackInProgress   = errors.New("rollback already in progress")
)

// Location states added on top of base.Status.
const (
	StatusSkipped   base.Status = "skipped"
	StatusCancelled base.Status = "cancelled"
)

// Adapters supplies adapters by name. *registry.Registry implements it.
type Adapters interface {
	Get(ctx context.Context, name string) (base.Adapter, error)
	GetConfig(name string) (*base.AdapterConfig, error)
	Open(ctx context.Context, cfg *base.AdapterConfig) (base.Adapter, error)
}

// Target is one location in one adapter with the findings to mask there.
type Target struct {
	Adapter  string                `json:"adapter"`
	Location string                `json:"location"`
	Findings []base.MaskingFinding `json:"findings"`
}

// Request asks for a masking run.
type Request struct {
	RequestedBy string   `json:"requested_by"`
	Confirmed   bool     `json:"confirmed"`
	Targets     []Target `json:"targets"`
}

// LocationReport is the outcome for one target.
type LocationReport struct {
	Adapter     string              `json:"adapter"`
	AdapterType string              `json:"adapter_type,omitempty"`
	Location    string              `json:"location"`
	Status      base.Status         `json:"status"`
	Skipped     int                 `json:"skipped_findings"`
	Verified    bool                `json:"verified"`
	Result      *base.MaskingResult `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// RunStatus summarises a run.
type RunStatus string

// Run states.
const (
	RunCompleted  RunStatus = "completed"
	RunPartial    RunStatus = "partial"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunRolledBack RunStatus = "rolled_back"
)

// Run is the report of one masking run.
type Run struct {
	ID            uuid.UUID        `json:"id"`
	Policy        string           `json:"policy"`
	Mode          masking.Mode     `json:"mode"`
	RequestedBy   string           `json:"requested_by,omitempty"`
	Status        RunStatus        `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	TotalFindings int              `json:"total_findings"`
	Masked        int              `json:"masked"`
	Failed        int              `json:"failed"`
	Skipped       int              `json:"skipped"`
	Locations     []LocationReport `json:"locations"`
}

// Orchestrator drives masking runs under one policy.
type Orchestrator struct {
	adapters Adapters
	policy   *masking.Policy
	masker   masking.Masker
	audit    audit.Repository
	workers  int
	logger   *logger.Logger
	now      func() time.Time

	mu          sync.RWMutex
	runs        map[uuid.UUID]*Run
	order       []uuid.UUID
	rollingBack map[uuid.UUID]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets how many locations are masked at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger replaces the structured logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAudit writes an audit entry per masked location.
func WithAudit(repo audit.Repository) Option {
	return func(o *Orchestrator) { o.audit = repo }
}

// New validates policy and creates an orchestrator. Secret references in
// the policy must already be resolved.
func New(adapters Adapters, policy *masking.Policy, opts ...Option) (*Orchestrator, error) {
	masker, err := policy.Masker()
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		adapters:    adapters,
		policy:      policy.Clone(),
		masker:      masker,
		workers:     DefaultWorkers,
		logger:      logger.New("masking-orchestrator"),
		now:         time.Now,
		runs:        make(map[uuid.UUID]*Run),
		rollingBack: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Policy returns a copy of the policy in force.
func (o *Orchestrator) Policy() *masking.Policy { return o.policy.Clone() }

// unit is one (adapter, location) pair of a run.
type unit struct {
	adapter  string
	location string
	findings []base.MaskingFinding
	skipped  int
	excluded bool
}

// plan merges targets that name the same location and applies the policy
// exclusions.
func (o *Orchestrator) plan(targets []Target) []*unit {
	var units []*unit
	byKey := make(map[string]*unit)
	for _, t := range targets {
		key := t.Adapter + "\x00" + t.Location
		u, ok := byKey[key]
		if !ok {
			u = &unit{adapter: t.Adapter, location: t.Location, excluded: !o.policy.ShouldMaskAsset(t.Location)}
			byKey[key] = u
			units = append(units, u)
		}
		for _, f := range t.Findings {
			if u.excluded || !o.policy.ShouldMaskPIIType(f.PIIType) {
				u.skipped++
				continue
			}
			u.findings = append(u.findings, f)
		}
	}
	return units
}

// handle is an adapter acquired for one run.
type handle struct {
	adapter base.Adapter
	dryRun  bool
	release func()
	err     error
}

// acquire returns the registered adapter, or a run-scoped one when the
// policy turns on dry run or turns off backups for this run.
func (o *Orchestrator) acquire(ctx context.Context, name string) handle {
	cfg, err := o.adapters.GetConfig(name)
	if err != nil {
		return handle{err: err, release: func() {}}
	}
	dryRun := cfg.DryRun || o.policy.IsDryRun()
	backup := cfg.BackupEnabled && o.policy.BackupEnabled
	if dryRun == cfg.DryRun && backup == cfg.BackupEnabled {
		a, err := o.adapters.Get(ctx, name)
		return handle{adapter: a, dryRun: dryRun, err: err, release: func() {}}
	}

	runCfg := *cfg
	runCfg.DryRun = dryRun
	runCfg.BackupEnabled = backup
	a, err := o.adapters.Open(ctx, &runCfg)
	if err != nil {
		return handle{err: err, release: func() {}}
	}
	return handle{adapter: a, dryRun: dryRun, release: func() {
		if err := a.Disconnect(context.Background()); err != nil {
			o.logger.Warn("", "", "Failed to disconnect run-scoped adapter", map[string]interface{}{"adapter": name, "error": err.Error()})
		}
	}}
}

// Run masks every target. Locations are processed concurrently, one unit
// per location. A cancelled context stops units that have not started;
// finished locations are not rolled back.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Run, error) {
	if len(req.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if o.policy.RequireConfirmation && !req.Confirmed && !o.policy.IsDryRun() {
		return nil, ErrConfirmationRequired
	}

	units := o.plan(req.Targets)
	total := 0
	for _, u := range units {
		total += len(u.findings)
	}
	if total > o.policy.MaxFindingsPerRun {
		return nil, fmt.Errorf("%w: %d findings, limit %d", ErrTooManyFindings, total, o.policy.MaxFindingsPerRun)
	}

	run := &Run{
		ID:          uuid.New(),
		Policy:      o.policy.Name,
		Mode:        o.policy.Mode,
		RequestedBy: req.RequestedBy,
		StartedAt:   o.now().UTC(),
		Locations:   make([]LocationReport, len(units)),
	}
	o.logger.Info(req.RequestedBy, run.ID.String(), "Masking run started", map[string]interface{}{
		"policy":    run.Policy,
		"mode":      string(run.Mode),
		"locations": len(units),
		"findings":  total,
	})

	handles := make(map[string]handle)
	for _, u := range units {
		if _, ok := handles[u.adapter]; !ok && !u.excluded && len(u.findings) > 0 {
			handles[u.adapter] = o.acquire(ctx, u.adapter)
		}
	}
	defer func() {
		for _, h := range handles {
			h.release()
		}
	}()

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := o.workers
	if workers > len(units) {
		workers = len(units)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				run.Locations[i] = o.execute(ctx, run, units[i], handles[units[i].adapter])
			}
		}()
	}
	for i := range units {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	o.summarise(run)
	o.store(run)
	o.logger.Info(req.RequestedBy, run.ID.String(), "Masking run finished", map[string]interface{}{
		"status":  string(run.Status),
		"masked":  run.Masked,
		"failed":  run.Failed,
		"skipped": run.Skipped,
	})
	return run.copy(), nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, u *unit, h handle) LocationReport {
	rep := LocationReport{Adapter: u.adapter, Location: u.location, Skipped: u.skipped}
	if err := ctx.Err(); err != nil {
		rep.Status = StatusCancelled
		rep.Error = err.Error()
		return rep
	}
	if u.excluded || len(u.findings) == 0 {
		rep.Status = StatusSkipped
		if u.excluded {
			rep.Error = "location excluded by policy"
		}
		recordLocation("", &rep)
		return rep
	}
	if h.err != nil {
		rep.Result = base.FailedResult(len(u.findings), "", h.err)
		rep.Status = base.StatusFailed
		rep.Error = logger.Scrub(h.err.Error())
		o.writeAudit(ctx, run, u, &rep, h.dryRun)
		recordLocation("", &rep)
		return rep
	}

	rep.AdapterType = h.adapter.Type()
	result := h.adapter.MaskFindings(ctx, u.findings, o.masker, u.location)
	result.ApplyMode(o.policy.Mode == masking.ModeStrict)
	rep.Result = result
	rep.Status = result.Status
	rep.Error = logger.Scrub(result.ErrorMessage)

	if result.Status == base.StatusCompleted && !h.dryRun && result.MaskedCount > 0 {
		o.verify(ctx, u, h, &rep)
	}

	o.writeAudit(ctx, run, u, &rep, h.dryRun)
	recordLocation(rep.AdapterType, &rep)
	return rep
}

// verify re-reads the location. In lenient mode the values of findings the
// adapter reported as failed may remain; residue of any other finding
// fails the location.
func (o *Orchestrator) verify(ctx context.Context, u *unit, h handle, rep *LocationReport) {
	ok, err := h.adapter.VerifyMasking(ctx, u.location, u.findings)
	if err == nil && !ok && rep.Result.FailedCount > 0 {
		masked := rep.Result.Masked(u.findings)
		ok = len(masked) == 0
		if !ok {
			ok, err = h.adapter.VerifyMasking(ctx, u.location, masked)
		}
		if err == nil && ok {
			rep.Error = fmt.Sprintf("%d findings left unmasked", rep.Result.FailedCount)
			return
		}
	}
	switch {
	case err != nil:
		rep.fail("verification error: " + logger.Scrub(err.Error()))
	case ok:
		rep.Verified = true
	default:
		promVerifyFailures.Inc()
		rep.fail("verification failed: original values still present")
	}
}

func (r *LocationReport) fail(msg string) {
	r.Status = base.StatusFailed
	r.Error = msg
	r.Result.Status = base.StatusFailed
	r.Result.ErrorMessage = msg
}

func (o *Orchestrator) writeAudit(ctx context.Context, run *Run, u *unit, rep *LocationReport, dryRun bool) {
	if o.audit == nil {
		return
	}
	entry := &audit.MaskingAudit{
		ID:              uuid.New(),
		RunID:           run.ID,
		AssetID:         audit.AssetKey(u.adapter, u.location),
		Adapter:         u.adapter,
		Location:        u.location,
		MaskedBy:        run.RequestedBy,
		MaskingStrategy: o.strategyLabel(u.findings),
		PIITypes:        piiTypes(u.findings),
		FindingsCount:   len(u.findings),
		Status:          string(rep.Status),
		Verified:        rep.Verified,
		ErrorMessage:    rep.Error,
		MaskedAt:        o.now().UTC(),
		Metadata: map[string]interface{}{
			"policy":           run.Policy,
			"mode":             string(run.Mode),
			"dry_run":          dryRun,
			"skipped_findings": u.skipped,
		},
	}
	if rep.Result != nil {
		entry.MaskedCount = rep.Result.MaskedCount
		entry.FailedCount = rep.Result.FailedCount
		entry.BackupLocation = rep.Result.BackupLocation
		entry.Metadata["duration_ms"] = rep.Result.Duration.Milliseconds()
	}
	// The entry records work that already happened, so it is written even
	// when the run was cancelled meanwhile.
	if err := o.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Error(run.RequestedBy, run.ID.String(), "Failed to write masking audit entry", map[string]interface{}{
			"location": u.location,
			"error":    err.Error(),
		})
	}
}

// strategyLabel is the single strategy applied to findings, or MIXED.
func (o *Orchestrator) strategyLabel(findings []base.MaskingFinding) string {
	label := ""
	for _, f := range findings {
		s := o.policy.StrategyFor(f.PIIType)
		if label == "" {
			label = s
		} else if label != s {
			return "MIXED"
		}
	}
	if label == "" {
		return o.policy.StrategyFor("")
	}
	return label
}

func piiTypes(findings []base.MaskingFinding) []string {
	seen := make(map[string]bool)
	var types []string
	for _, f := range findings {
		t := strings.ToUpper(strings.TrimSpace(f.PIIType))
		if t != "" && !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

func (o *Orchestrator) summarise(run *Run) {
	var completed, failed, cancelled int
	for _, rep := range run.Locations {
		run.Skipped += rep.Skipped
		if rep.Result != nil {
			run.TotalFindings += rep.Result.TotalFindings
			run.Masked += rep.Result.MaskedCount
			run.Failed += rep.Result.FailedCount
		}
		switch rep.Status {
		case base.StatusCompleted:
			completed++
		case base.StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		}
	}
	run.TotalFindings += run.Skipped
	run.FinishedAt = o.now().UTC()
	switch {
	case cancelled > 0:
		run.Status = RunCancelled
	case failed == 0:
		run.Status = RunCompleted
	case completed == 0:
		run.Status = RunFailed
	default:
		run.Status = RunPartial
	}
}

func (o *Orchestrator) store(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[run.ID] = run
	o.order = append(o.order, run.ID)
	if len(o.order) > historySize {
		delete(o.runs, o.order[0])
		o.order = o.order[1:]
	}
}

// Get returns a copy of a recent run.
func (o *Orchestrator) Get(id uuid.UUID) (*Run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.copy(), nil
}

// List returns copies of recent runs, newest first.
func (o *Orchestrator) List() []*Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Run, 0, len(o.order))
	for i := len(o.order) - 1; i >= 0; i-- {
		out = append(out, o.runs[o.order[i]].copy())
	}
	return out
}

// Rollback restores every location of a run that has a backup. Locations
// are restored one at a time on a private copy of the run; failures are
// recorded per location and do not stop the rest. The stored run is
// replaced once the rollback finishes.
func (o *Orchestrator) Rollback(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := o.beginRollback(id)
	if err != nil {
		return nil, err
	}
	defer o.finishRollback(run)

	restored, failed := 0, 0
	for i := range run.Locations {
		rep := &run.Locations[i]
		if rep.Result == nil || rep.Result.BackupLocation == "" || rep.Status == base.StatusRolledBack {
			continue
		}
		if err := ctx.Err(); err != nil {
			return run.copy(), err
		}
		adapter, err := o.adapters.Get(ctx, rep.Adapter)
		if err == nil {
			err = rollbackLocation(ctx, adapter, rep)
		}
		recordRollback(err)
		if err != nil {
			failed++
			rep.Error = "rollback failed: " + logger.Scrub(err.Error())
			o.logger.Error(run.RequestedBy, run.ID.String(), "Rollback failed", map[string]interface{}{
				"location": rep.Location,
				"error":    err.Error(),
			})
			continue
		}
		restored++
		rep.Status = base.StatusRolledBack
		rep.Result.Status = base.StatusRolledBack
		rep.Verified = false
		o.writeAudit(ctx, run, &unit{adapter: rep.Adapter, location: rep.Location}, rep, false)
	}
	if restored > 0 && failed == 0 {
		run.Status = RunRolledBack
	}
	o.logger.Info(run.RequestedBy, run.ID.String(), "Masking run rolled back", map[string]interface{}{
		"restored": restored,
		"failed":   failed,
	})
	return run.copy(), nil
}

// beginRollback claims the run and returns a copy to work on.
func (o *Orchestrator) beginRollback(id uuid.UUID) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	if run.Mode == masking.ModeDryRun {
		return nil, fmt.Errorf("run %s was a dry run; nothing to roll back", id)
	}
	if o.rollingBack[id] {
		return nil, fmt.Errorf("run %s: %w", id, ErrRollbackInProgress)
	}
	o.rollingBack[id] = true
	return run.copy(), nil
}

// finishRollback publishes run and releases the claim. A run that fell out
// of the history meanwhile is not re-added.
func (o *Orchestrator) finishRollback(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.rollingBack, run.ID)
	if _, ok := o.runs[run.ID]; ok {
		o.runs[run.ID] = run
	}
}

// rollbackLocation restores one location. SQL results list one backup per
// table in Details["tables"]; each table is restored from its own backup.
func rollbackLocation(ctx context.Context, a base.Adapter, rep *LocationReport) error {
	backups := strings.Split(rep.Result.BackupLocation, ",")
	tables, _ := rep.Result.Details["tables"].([]string)
	if len(tables) == len(backups) {
		for i, b := range backups {
			if err := a.Rollback(ctx, b, tables[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return a.Rollback(ctx, rep.Result.BackupLocation, rep.Location)
}

// copy returns a deep copy, so callers never share results with the stored
// run.
func (r *Run) copy() *Run {
	c := *r
	c.Locations = make([]LocationReport, len(r.Locations))
	for i, rep := range r.Locations {
		rep.Result = rep.Result.Clone()
		c.Locations[i] = rep
	}
	return &c
}

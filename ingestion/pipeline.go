// Package ingestion turns uploaded documents into validated question banks:
// structured imports are parsed directly, PDFs go through text extraction and
// AI generation, and output that does not parse is kept for manual repair.
package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quizzer-server/db"
	"quizzer-server/models"
	"quizzer-server/notify"
)

var (
	ErrJobNotFound   = errors.New("ingestion job not found")
	ErrNotRepairable = errors.New("job has no output to repair")
	ErrNoSource      = errors.New("test has no source text to regenerate from")
	ErrNoFiles       = errors.New("no files uploaded")
)

// CombinedSeparator joins the texts of a combined upload before generation.
const CombinedSeparator = "\n\n---\n\n"

const sourceName = "ingestion"

// Status is where a job is in the pipeline.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusThinking   Status = "thinking"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Mode says how a job's result becomes a test.
type Mode string

const (
	// Separate jobs wait in the ready state until Commit.
	Separate Mode = "separate"
	// Combined and Regenerate jobs create their test as soon as they succeed.
	Combined   Mode = "combined"
	Regenerate Mode = "regenerate"
)

// Upload is one received file.
type Upload struct {
	Name string
	Data []byte
}

// Job is the state of one ingestion. Copies returned by the pipeline are snapshots.
type Job struct {
	ID          string            `json:"id"`
	Mode        Mode              `json:"mode"`
	Name        string            `json:"name"`
	Files       []string          `json:"files"`
	Kind        Kind              `json:"kind,omitempty"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Raw         string            `json:"raw,omitempty"` // unparseable output kept for repair
	Questions   []models.Question `json:"questions,omitempty"`
	FileContent string            `json:"-"`
	TestID      string            `json:"testId,omitempty"`
	Committed   bool              `json:"committed"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`

	cancel context.CancelFunc
}

// Repairable reports whether the job failed with output a person can fix.
func (j Job) Repairable() bool { return j.Status == StatusError && j.Raw != "" }

// Settled jobs need no further action and may be pruned.
func (j Job) Settled() bool { return j.Committed || j.Status == StatusCancelled }

// Running jobs can be cancelled.
func (j Job) Running() bool { return j.Status == StatusProcessing || j.Status == StatusThinking }

func (j *Job) snapshot() Job {
	out := *j
	out.cancel = nil
	out.Files = append([]string(nil), j.Files...)
	out.Questions = models.CloneQuestions(j.Questions)
	return out
}

// Pipeline coordinates extraction, generation, parsing and the job registry.
type Pipeline struct {
	store     db.Store
	extractor Extractor
	generator Generator
	sink      notify.Sink
	now       func() time.Time
	newID     func() string

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	commitMu sync.Mutex // one Commit at a time so ready jobs are written once
	mu       sync.Mutex
	jobs     map[string]*Job
}

// NewPipeline wires the collaborators. Close cancels in-flight work.
func NewPipeline(store db.Store, extractor Extractor, generator Generator, sink notify.Sink) *Pipeline {
	base, stop := context.WithCancel(context.Background())
	return &Pipeline{
		store:     store,
		extractor: extractor,
		generator: generator,
		sink:      sink,
		now:       time.Now,
		newID:     uuid.NewString,
		base:      base,
		stop:      stop,
		jobs:      make(map[string]*Job),
	}
}

// Close cancels every running job and waits for the workers to return.
func (p *Pipeline) Close() {
	p.stop()
	p.wg.Wait()
}

// Wait blocks until every started worker has returned.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) newJob(mode Mode, name string, files []string) *Job {
	now := p.now()
	j := &Job{
		ID:        p.newID(),
		Mode:      mode,
		Name:      name,
		Files:     files,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.mu.Lock()
	p.jobs[j.ID] = j
	p.mu.Unlock()
	return j
}

func (p *Pipeline) update(id string, fn func(j *Job)) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	fn(j)
	j.UpdatedAt = p.now()
	return j.snapshot(), true
}

// start runs work on a goroutine with a cancellable context owned by the job.
func (p *Pipeline) start(j *Job, work func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(p.base)
	p.mu.Lock()
	j.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		work(ctx)
		p.mu.Lock()
		j.cancel = nil
		p.mu.Unlock()
	}()
}

// Ingest starts one separate job per file and returns their initial state.
func (p *Pipeline) Ingest(files []Upload) []Job {
	out := make([]Job, 0, len(files))
	for _, f := range files {
		j := p.newJob(Separate, TestName(f.Name), []string{f.Name})
		kind, err := DetectKind(f.Name)
		if err != nil {
			snap, _ := p.update(j.ID, func(j *Job) {
				j.Status = StatusError
				j.Error = "Unsupported file type."
			})
			notify.Error(p.sink, fmt.Sprintf("%s: Unsupported file type.", f.Name))
			out = append(out, snap)
			continue
		}
		snap, _ := p.update(j.ID, func(j *Job) { j.Kind = kind })
		out = append(out, snap)

		f := f
		p.start(j, func(ctx context.Context) { p.runSeparate(ctx, j.ID, kind, f) })
	}
	return out
}

func (p *Pipeline) runSeparate(ctx context.Context, id string, kind Kind, f Upload) {
	var (
		questions []models.Question
		err       error
	)
	switch kind {
	case KindJSON:
		var cleaned string
		questions, cleaned, err = ParseQuestions(string(f.Data))
		if err != nil {
			p.failParse(id, "Invalid JSON format", cleaned, err)
			return
		}
	case KindYAML:
		questions, err = ImportYAML(f.Data)
	case KindCSV:
		questions, err = ImportCSV(bytes.NewReader(f.Data))
	case KindXLSX:
		questions, err = ImportXLSX(f.Data)
	case KindPDF:
		text, xerr := p.extract(ctx, id, f)
		if xerr != nil {
			return
		}
		questions, err = p.generate(ctx, id, text)
		if err != nil || !p.settle(ctx, id) {
			return
		}
		p.update(id, func(j *Job) { j.FileContent = text })
	}
	if err != nil {
		log.Printf("Import of %s failed: %v", f.Name, err)
		p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		})
		notify.Error(p.sink, fmt.Sprintf("%s: %v", f.Name, err))
		return
	}
	p.update(id, func(j *Job) {
		j.Status = StatusReady
		j.Questions = questions
	})
}

func (p *Pipeline) extract(ctx context.Context, id string, f Upload) (string, error) {
	text, err := p.extractor.Extract(ctx, bytes.NewReader(f.Data))
	if ctx.Err() != nil {
		return "", p.cancelled(id)
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrExtraction, f.Name, err)
		log.Printf("Extraction failed for job %s: %v", id, err)
		p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		})
		notify.Error(p.sink, err.Error())
		return "", err
	}
	return NormalizeQuotes(text), nil
}

// generate runs the AI call and parses its output, recording the outcome on
// the job when it is not a success.
func (p *Pipeline) generate(ctx context.Context, id, text string) ([]models.Question, error) {
	p.update(id, func(j *Job) { j.Status = StatusThinking })

	raw, err := p.generator.Generate(ctx, text)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil, p.cancelled(id)
	}
	if err != nil {
		log.Printf("Generation failed for job %s: %v", id, err)
		p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		})
		notify.Error(p.sink, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	questions, cleaned, err := ParseQuestions(raw)
	if err != nil {
		p.failParse(id, "AI response was not valid JSON.", cleaned, err)
		return nil, err
	}
	return questions, nil
}

// settle is a worker's point of no return. Once it succeeds Cancel no longer
// affects the job; it reports false when the cancel came first.
func (p *Pipeline) settle(ctx context.Context, id string) bool {
	p.mu.Lock()
	j, ok := p.jobs[id]
	live := ok && ctx.Err() == nil
	if live {
		j.cancel = nil
	}
	p.mu.Unlock()
	if ok && !live {
		p.cancelled(id)
	}
	return live
}

// cancelled moves a job the user aborted to the neutral cancelled outcome.
func (p *Pipeline) cancelled(id string) error {
	p.update(id, func(j *Job) {
		j.Status = StatusCancelled
		j.Error = "Cancelled"
	})
	notify.Warning(p.sink, "Quiz generation was cancelled.")
	return ErrCancelled
}

func (p *Pipeline) failParse(id, reason, cleaned string, err error) {
	log.Printf("Job %s output did not parse: %v", id, err)
	p.update(id, func(j *Job) {
		j.Status = StatusError
		j.Error = reason
		j.Raw = cleaned
	})
	notify.Warning(p.sink, reason)
}

// IngestCombined extracts every PDF in parallel, joins the texts and makes a
// single test from one generation call.
func (p *Pipeline) IngestCombined(name string, files []Upload) (Job, error) {
	if len(files) == 0 {
		return Job{}, ErrNoFiles
	}
	names := make([]string, len(files))
	for i, f := range files {
		kind, err := DetectKind(f.Name)
		if err == nil && kind != KindPDF {
			err = fmt.Errorf("%w: %s", ErrUnsupportedType, f.Name)
		}
		if err != nil {
			notify.Error(p.sink, "Unsupported file type.")
			return Job{}, err
		}
		names[i] = f.Name
	}
	if strings.TrimSpace(name) == "" {
		name = "Untitled Combined Test"
	}

	j := p.newJob(Combined, name, names)
	snap, _ := p.update(j.ID, func(j *Job) { j.Kind = KindPDF })
	p.start(j, func(ctx context.Context) { p.runCombined(ctx, j.ID, files) })
	return snap, nil
}

func (p *Pipeline) runCombined(ctx context.Context, id string, files []Upload) {
	texts := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			text, err := p.extractor.Extract(gctx, bytes.NewReader(f.Data))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrExtraction, f.Name, err)
			}
			texts[i] = NormalizeQuotes(text)
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		p.cancelled(id)
		return
	}
	if err != nil {
		log.Printf("Combined extraction failed for job %s: %v", id, err)
		p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
		})
		notify.Error(p.sink, err.Error())
		return
	}

	combined := strings.Join(texts, CombinedSeparator)
	p.update(id, func(j *Job) { j.FileContent = combined })
	questions, err := p.generate(ctx, id, combined)
	if err != nil || !p.settle(ctx, id) {
		return
	}
	p.createTest(id, questions, "Combined test created!")
}

// RegenerateTest sends the source text of t through generation again and
// stores the result as a new test.
func (p *Pipeline) RegenerateTest(t models.Test) (Job, error) {
	if strings.TrimSpace(t.FileContent) == "" {
		return Job{}, ErrNoSource
	}
	j := p.newJob(Regenerate, t.Name+" (regenerated)", nil)
	snap, _ := p.update(j.ID, func(j *Job) {
		j.Kind = KindPDF
		j.FileContent = t.FileContent
	})
	p.start(j, func(ctx context.Context) {
		questions, err := p.generate(ctx, j.ID, t.FileContent)
		if err != nil || !p.settle(ctx, j.ID) {
			return
		}
		p.createTest(j.ID, questions, fmt.Sprintf("Test '%s' created.", snap.Name))
	})
	return snap, nil
}

// createTest stores the questions of a combined or regenerate job as a new test.
func (p *Pipeline) createTest(id string, questions []models.Question, success string) (models.Test, error) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return models.Test{}, ErrJobNotFound
	}
	t := models.Test{
		ID:          p.newID(),
		Name:        j.Name,
		CreatedAt:   p.now().UTC(),
		Questions:   questions,
		Attempts:    []models.Attempt{},
		FileContent: j.FileContent,
	}
	p.mu.Unlock()

	if err := p.store.Add(p.base, t); err != nil {
		log.Printf("Saving test from job %s failed: %v", id, err)
		p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = "Could not save the test."
			j.Questions = questions
		})
		notify.Error(p.sink, "Could not save the test.")
		return models.Test{}, fmt.Errorf("saving test from job %s: %w", id, err)
	}
	p.update(id, func(j *Job) {
		j.Status = StatusReady
		j.Questions = questions
		j.Raw = ""
		j.Error = ""
		j.TestID = t.ID
		j.Committed = true
	})
	db.LogEvent(p.base, p.store, sourceName, t.ID, fmt.Sprintf("created %q with %d questions", t.Name, len(t.Questions)))
	notify.Success(p.sink, success)
	return t, nil
}

// Commit writes every ready separate job as its own test.
func (p *Pipeline) Commit(ctx context.Context) ([]models.Test, error) {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	var pending []Job
	for _, j := range p.Jobs() {
		if j.Mode == Separate && j.Status == StatusReady && !j.Committed {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	created := make([]models.Test, 0, len(pending))
	for _, j := range pending {
		name := j.Name
		if strings.TrimSpace(name) == "" {
			name = "Untitled Test"
		}
		t := models.Test{
			ID:          p.newID(),
			Name:        name,
			CreatedAt:   p.now().UTC(),
			Questions:   j.Questions,
			Attempts:    []models.Attempt{},
			FileContent: j.FileContent,
		}
		if err := p.store.Add(ctx, t); err != nil {
			notify.Error(p.sink, fmt.Sprintf("Could not save '%s'.", name))
			return created, fmt.Errorf("committing job %s: %w", j.ID, err)
		}
		p.update(j.ID, func(j *Job) {
			j.Committed = true
			j.TestID = t.ID
		})
		db.LogEvent(ctx, p.store, sourceName, t.ID, fmt.Sprintf("created %q with %d questions", t.Name, len(t.Questions)))
		created = append(created, t)
	}
	notify.Success(p.sink, fmt.Sprintf("%d test(s) created!", len(created)))
	return created, nil
}

// Repair re-parses corrected text for a failed job. On failure the job keeps
// the new text and reports "Still invalid"; the caller may try again.
func (p *Pipeline) Repair(id, text string) (Job, error) {
	// Claim the job so a concurrent Repair sees it as not repairable.
	p.mu.Lock()
	jp, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return Job{}, ErrJobNotFound
	}
	if !jp.Repairable() {
		snap := jp.snapshot()
		p.mu.Unlock()
		return snap, ErrNotRepairable
	}
	jp.Status = StatusProcessing
	jp.Raw = text
	jp.UpdatedAt = p.now()
	j := jp.snapshot()
	p.mu.Unlock()

	questions, err := decodeQuestions(StripFences(NormalizeQuotes(text)))
	if err != nil {
		snap, _ := p.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = "Still invalid: " + err.Error()
		})
		return snap, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	if j.Mode == Separate {
		snap, _ := p.update(id, func(j *Job) {
			j.Status = StatusReady
			j.Questions = questions
			j.Raw = ""
			j.Error = ""
		})
		notify.Success(p.sink, fmt.Sprintf("Test '%s' is now ready.", j.Name))
		return snap, nil
	}

	if _, err := p.createTest(id, questions, "Test created after fixing!"); err != nil {
		snap, _ := p.Job(id)
		return snap, err
	}
	snap, _ := p.Job(id)
	return snap, nil
}

// Cancel aborts a running job. The worker moves it to cancelled.
func (p *Pipeline) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Running() && j.cancel != nil {
		j.cancel()
	}
	return nil
}

// Remove cancels a job if it is running and forgets it.
func (p *Pipeline) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.cancel != nil {
		j.cancel()
	}
	delete(p.jobs, id)
	return nil
}

// Job returns a snapshot of one job.
func (p *Pipeline) Job(id string) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Jobs returns snapshots of every job, oldest first.
func (p *Pipeline) Jobs() []Job {
	p.mu.Lock()
	out := make([]Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.snapshot())
	}
	p.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Prune forgets settled jobs last touched more than ttl ago.
func (p *Pipeline) Prune(ttl time.Duration) int {
	cutoff := p.now().Add(-ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, j := range p.jobs {
		if j.Settled() && j.UpdatedAt.Before(cutoff) {
			delete(p.jobs, id)
			n++
		}
	}
	return n
}

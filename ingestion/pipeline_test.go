package ingestion

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/db"
	"quizzer-server/models"
	"quizzer-server/notify"
)

// fakeExtractor returns the uploaded bytes as text.
type fakeExtractor struct {
	fail error
}

func (f fakeExtractor) Extract(_ context.Context, r io.Reader) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	data, err := io.ReadAll(r)
	return string(data), err
}

// fakeGenerator returns out, or blocks until cancelled when block is set.
type fakeGenerator struct {
	mu      sync.Mutex
	out     string
	err     error
	block   bool
	started chan struct{}
	inputs  []string
}

func (g *fakeGenerator) Generate(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.inputs = append(g.inputs, text)
	block, out, err := g.block, g.out, g.err
	g.mu.Unlock()
	if g.started != nil {
		close(g.started)
	}
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return out, err
}

func newPipeline(t *testing.T, gen Generator, ex Extractor) (*Pipeline, db.Store, *notify.Capture) {
	t.Helper()
	s, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	sink := &notify.Capture{}
	p := NewPipeline(s, ex, gen, sink)
	t.Cleanup(p.Close)
	return p, s, sink
}

func countTests(t *testing.T, s db.Store) int {
	t.Helper()
	all, err := s.List(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestSeparateJSONUploadAndCommit(t *testing.T) {
	p, s, sink := newPipeline(t, &fakeGenerator{}, fakeExtractor{})

	jobs := p.Ingest([]Upload{
		{Name: "Geography.json", Data: []byte(validJSON)},
		{Name: "notes.docx", Data: []byte("x")},
	})
	require.Len(t, jobs, 2)
	assert.Equal(t, StatusError, jobs[1].Status)
	assert.Equal(t, "Unsupported file type.", jobs[1].Error)

	p.Wait()
	job, ok := p.Job(jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, StatusReady, job.Status)
	assert.Equal(t, "Geography", job.Name)
	assert.Equal(t, 0, countTests(t, s), "nothing is stored before commit")

	created, err := p.Commit(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Geography", created[0].Name)
	assert.Equal(t, 1, countTests(t, s))
	assert.Contains(t, sink.Messages(), "1 test(s) created!")

	again, err := p.Commit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again, "committed jobs are written once")
}

func TestSeparatePDFGeneratesQuestions(t *testing.T) {
	gen := &fakeGenerator{out: "```json\n" + validJSON + "\n```"}
	p, _, _ := newPipeline(t, gen, fakeExtractor{})

	jobs := p.Ingest([]Upload{{Name: "Lecture 3.pdf", Data: []byte("chlorophyll")}})
	p.Wait()
	job, _ := p.Job(jobs[0].ID)
	assert.Equal(t, StatusReady, job.Status)
	assert.Len(t, job.Questions, 1)
	assert.Equal(t, "chlorophyll", job.FileContent)
}

func TestCancelledGenerationCreatesNothing(t *testing.T) {
	gen := &fakeGenerator{block: true, started: make(chan struct{})}
	p, s, sink := newPipeline(t, gen, fakeExtractor{})

	job, err := p.IngestCombined("", []Upload{{Name: "a.pdf", Data: []byte("A")}})
	require.NoError(t, err)
	assert.Equal(t, "Untitled Combined Test", job.Name)

	select {
	case <-gen.started:
	case <-time.After(time.Second):
		t.Fatal("generation never started")
	}
	require.NoError(t, p.Cancel(job.ID))
	p.Wait()

	job, _ = p.Job(job.ID)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, 0, countTests(t, s))
	assert.Equal(t, []models.NoticeLevel{models.NoticeWarning}, sink.Levels())
	assert.Equal(t, []string{"Quiz generation was cancelled."}, sink.Messages())
}

func TestCombinedJoinsTextsAndCreatesTest(t *testing.T) {
	gen := &fakeGenerator{out: validJSON}
	p, s, sink := newPipeline(t, gen, fakeExtractor{})

	job, err := p.IngestCombined("Combined Quiz", []Upload{
		{Name: "one.pdf", Data: []byte("first")},
		{Name: "two.pdf", Data: []byte("second")},
	})
	require.NoError(t, err)
	p.Wait()

	require.Equal(t, []string{"first\n\n---\n\nsecond"}, gen.inputs)
	job, _ = p.Job(job.ID)
	assert.True(t, job.Committed)
	stored, err := s.Get(context.Background(), job.TestID)
	require.NoError(t, err)
	assert.Equal(t, "Combined Quiz", stored.Name)
	assert.Equal(t, "first\n\n---\n\nsecond", stored.FileContent)
	assert.Contains(t, sink.Messages(), "Combined test created!")
}

func TestCombinedRejectsNonPDF(t *testing.T) {
	p, _, _ := newPipeline(t, &fakeGenerator{}, fakeExtractor{})
	_, err := p.IngestCombined("x", []Upload{{Name: "a.pdf"}, {Name: "b.json"}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, p.Jobs())
}

func TestExtractionFailure(t *testing.T) {
	p, s, sink := newPipeline(t, &fakeGenerator{out: validJSON}, fakeExtractor{fail: errors.New("encrypted")})
	jobs := p.Ingest([]Upload{{Name: "locked.pdf", Data: []byte("x")}})
	p.Wait()

	job, _ := p.Job(jobs[0].ID)
	assert.Equal(t, StatusError, job.Status)
	assert.Contains(t, job.Error, "encrypted")
	assert.False(t, job.Repairable())
	assert.Equal(t, 0, countTests(t, s))
	assert.Equal(t, []models.NoticeLevel{models.NoticeError}, sink.Levels())
}

func TestGenerationErrorIsReported(t *testing.T) {
	p, _, sink := newPipeline(t, &fakeGenerator{err: errors.New("quota exceeded")}, fakeExtractor{})
	jobs := p.Ingest([]Upload{{Name: "a.pdf", Data: []byte("x")}})
	p.Wait()

	job, _ := p.Job(jobs[0].ID)
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "quota exceeded", job.Error)
	assert.Equal(t, []string{"quota exceeded"}, sink.Messages())
}

func TestMalformedOutputRepairLoop(t *testing.T) {
	gen := &fakeGenerator{out: "```json\n[{...malformed...}]\n```"}
	p, s, sink := newPipeline(t, gen, fakeExtractor{})

	job, err := p.IngestCombined("Biology", []Upload{{Name: "bio.pdf", Data: []byte("cells")}})
	require.NoError(t, err)
	p.Wait()

	job, _ = p.Job(job.ID)
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "AI response was not valid JSON.", job.Error)
	assert.Equal(t, "[{...malformed...}]", job.Raw)
	assert.True(t, job.Repairable())
	assert.Equal(t, 0, countTests(t, s))

	job, err = p.Repair(job.ID, `{"statement": "not a list"}`)
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Contains(t, job.Error, "Still invalid: ")
	assert.Equal(t, `{"statement": "not a list"}`, job.Raw)
	assert.Equal(t, 0, countTests(t, s))

	job, err = p.Repair(job.ID, validJSON)
	require.NoError(t, err)
	assert.True(t, job.Committed)
	assert.Equal(t, 1, countTests(t, s))
	assert.Contains(t, sink.Messages(), "Test created after fixing!")

	_, err = p.Repair(job.ID, validJSON)
	assert.ErrorIs(t, err, ErrNotRepairable)
}

func TestRepairSeparateJob(t *testing.T) {
	p, s, sink := newPipeline(t, &fakeGenerator{}, fakeExtractor{})
	jobs := p.Ingest([]Upload{{Name: "broken.json", Data: []byte(`[{"statement": "Q",}]`)}})
	p.Wait()

	job, _ := p.Job(jobs[0].ID)
	require.True(t, job.Repairable())
	assert.Equal(t, "Invalid JSON format", job.Error)

	job, err := p.Repair(job.ID, validJSON)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, job.Status)
	assert.Contains(t, sink.Messages(), "Test 'broken' is now ready.")
	assert.Equal(t, 0, countTests(t, s), "repaired separate jobs still wait for commit")
}

func TestRegenerate(t *testing.T) {
	gen := &fakeGenerator{out: validJSON}
	p, s, _ := newPipeline(t, gen, fakeExtractor{})

	_, err := p.RegenerateTest(models.Test{Name: "Manual"})
	assert.ErrorIs(t, err, ErrNoSource)

	job, err := p.RegenerateTest(models.Test{ID: "src", Name: "Bio", FileContent: "cells"})
	require.NoError(t, err)
	p.Wait()

	job, _ = p.Job(job.ID)
	stored, err := s.Get(context.Background(), job.TestID)
	require.NoError(t, err)
	assert.Equal(t, "Bio (regenerated)", stored.Name)
	assert.Equal(t, "cells", stored.FileContent)
	assert.Equal(t, []string{"cells"}, gen.inputs)
}

func TestPruneDropsSettledJobs(t *testing.T) {
	p, _, _ := newPipeline(t, &fakeGenerator{}, fakeExtractor{})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	jobs := p.Ingest([]Upload{
		{Name: "a.json", Data: []byte(validJSON)},
		{Name: "b.json", Data: []byte("nope")},
	})
	p.Wait()
	_, err := p.Commit(context.Background())
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	assert.Equal(t, 1, p.Prune(30*time.Minute))
	_, ok := p.Job(jobs[0].ID)
	assert.False(t, ok, "committed job pruned")
	_, ok = p.Job(jobs[1].ID)
	assert.True(t, ok, "failed job kept for repair")
}

// blockingExtractor waits for its context, the way pdftotext is killed on cancel.
type blockingExtractor struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingExtractor) Extract(ctx context.Context, _ io.Reader) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", errors.New("signal: killed")
}

func waitStarted(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("extraction never started")
	}
}

func TestCancelDuringExtractionIsNeutral(t *testing.T) {
	ex := &blockingExtractor{started: make(chan struct{})}
	p, s, sink := newPipeline(t, &fakeGenerator{out: validJSON}, ex)

	jobs := p.Ingest([]Upload{{Name: "notes.pdf", Data: []byte("x")}})
	waitStarted(t, ex.started)
	require.NoError(t, p.Cancel(jobs[0].ID))
	p.Wait()

	job, _ := p.Job(jobs[0].ID)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.True(t, job.Settled())
	assert.Equal(t, 0, countTests(t, s))
	assert.Equal(t, []models.NoticeLevel{models.NoticeWarning}, sink.Levels())
	assert.Equal(t, []string{"Quiz generation was cancelled."}, sink.Messages())
}

func TestCancelDuringCombinedExtractionIsNeutral(t *testing.T) {
	ex := &blockingExtractor{started: make(chan struct{})}
	gen := &fakeGenerator{out: validJSON}
	p, s, sink := newPipeline(t, gen, ex)

	job, err := p.IngestCombined("Both", []Upload{{Name: "a.pdf", Data: []byte("A")}, {Name: "b.pdf", Data: []byte("B")}})
	require.NoError(t, err)
	waitStarted(t, ex.started)
	require.NoError(t, p.Cancel(job.ID))
	p.Wait()

	job, _ = p.Job(job.ID)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Empty(t, gen.inputs, "generation never runs after a cancel")
	assert.Equal(t, 0, countTests(t, s))
	assert.Equal(t, []models.NoticeLevel{models.NoticeWarning}, sink.Levels())
}

func TestSettleAfterCancelCreatesNothing(t *testing.T) {
	p, s, sink := newPipeline(t, &fakeGenerator{}, fakeExtractor{})
	j := p.newJob(Combined, "Late", []string{"a.pdf"})

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	j.cancel = cancel
	p.mu.Unlock()
	require.NoError(t, p.Cancel(j.ID))

	assert.False(t, p.settle(ctx, j.ID))
	job, _ := p.Job(j.ID)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, 0, countTests(t, s))
	assert.Equal(t, []string{"Quiz generation was cancelled."}, sink.Messages())
}

func TestCancelAfterSettleIsIgnored(t *testing.T) {
	p, _, _ := newPipeline(t, &fakeGenerator{}, fakeExtractor{})
	j := p.newJob(Combined, "Late", []string{"a.pdf"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.mu.Lock()
	j.cancel = cancel
	p.mu.Unlock()

	require.True(t, p.settle(ctx, j.ID))
	require.NoError(t, p.Cancel(j.ID))
	assert.NoError(t, ctx.Err())
}

func TestConcurrentRepairCreatesOneTest(t *testing.T) {
	gen := &fakeGenerator{out: "[{...malformed...}]"}
	p, s, _ := newPipeline(t, gen, fakeExtractor{})

	job, err := p.IngestCombined("Biology", []Upload{{Name: "bio.pdf", Data: []byte("cells")}})
	require.NoError(t, err)
	p.Wait()
	job, _ = p.Job(job.ID)
	require.True(t, job.Repairable())

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Repair(job.ID, validJSON)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotRepairable):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, 1, countTests(t, s))
}

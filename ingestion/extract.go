package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Extractor turns a document into plain text.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// Generator turns source text into raw model output that should contain a
// JSON array of questions.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// PDFText extracts text with poppler's pdftotext.
type PDFText struct {
	Path    string
	Timeout time.Duration
}

// NewPDFText uses pdftotext from PATH with a one minute timeout.
func NewPDFText() *PDFText {
	return &PDFText{Path: "pdftotext", Timeout: 60 * time.Second}
}

func (p *PDFText) Extract(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "quizzer-*.pdf")
	if err != nil {
		return "", err
	}
	defer func() { f.Close(); os.Remove(f.Name()) }()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return p.ExtractPath(ctx, f.Name())
}

// ExtractPath runs the extractor on a file already on disk.
func (p *PDFText) ExtractPath(ctx context.Context, path string) (string, error) {
	bin := p.Path
	if bin == "" {
		bin = "pdftotext"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("%s not found in PATH", bin)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.New(msg)
		}
		return "", err
	}
	// pdftotext separates pages with form feeds
	return strings.ReplaceAll(out.String(), "\f", "\n\n"), nil
}

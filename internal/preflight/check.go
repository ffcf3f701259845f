// Package preflight validates the environment before the service
// starts: local resources (disk, file descriptors, data directory
// permissions) and the upstream collaborators the query pipeline
// depends on (embedding, reranking, generation).
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Prober reports whether an upstream collaborator is reachable.
// The embedder, reranker, and generator clients all satisfy it.
type Prober interface {
	Available(ctx context.Context) bool
}

const (
	// defaultMinDiskBytes is the free space the local backend needs
	// for the chunk database plus the rebuilt indexes.
	defaultMinDiskBytes = 100 * 1024 * 1024

	// defaultMinFileDescriptors covers the SQLite, bleve, and HTTP
	// connection churn under load.
	defaultMinFileDescriptors = 1024
)

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer

	minDiskBytes       uint64
	minFileDescriptors uint64

	embedder  Prober
	reranker  Prober
	generator Prober
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithMinDiskSpace overrides the free-space requirement in bytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDiskBytes = bytes
	}
}

// WithMinFileDescriptors overrides the file descriptor requirement.
func WithMinFileDescriptors(n uint64) Option {
	return func(c *Checker) {
		c.minFileDescriptors = n
	}
}

// WithUpstreams wires the upstream probes. A nil probe marks that
// upstream as not configured rather than unreachable.
func WithUpstreams(embedder, reranker, generator Prober) Option {
	return func(c *Checker) {
		c.embedder = embedder
		c.reranker = reranker
		c.generator = generator
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:             os.Stdout,
		minDiskBytes:       defaultMinDiskBytes,
		minFileDescriptors: defaultMinFileDescriptors,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks against the data directory.
func (c *Checker) RunAll(ctx context.Context, dataDir string) []CheckResult {
	// Write check first: it creates the data directory, which the
	// disk check then stats.
	results := []CheckResult{
		c.CheckWritePermissions(dataDir),
		c.CheckDiskSpace(dataDir),
		c.CheckFileDescriptors(),
	}

	// Upstream checks are non-critical: the pipeline degrades when
	// the embedder or reranker is away, and ingestion does not need
	// the generator at all.
	results = append(results,
		c.probe(ctx, "embedding_service", c.embedder),
		c.probe(ctx, "rerank_service", c.reranker),
		c.probe(ctx, "generation_backend", c.generator),
	)

	return results
}

func (c *Checker) probe(ctx context.Context, name string, p Prober) CheckResult {
	result := CheckResult{
		Name:     name,
		Required: false,
	}
	if p == nil {
		result.Status = StatusWarn
		result.Message = "not configured"
		return result
	}
	if !p.Available(ctx) {
		result.Status = StatusWarn
		result.Message = "unreachable (queries will degrade)"
		return result
	}
	result.Status = StatusPass
	result.Message = "reachable"
	return result
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "CorpusQA System Check")
	_, _ = fmt.Fprintln(c.output, "=====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errs) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckWritePermissions checks that the data directory is writable.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	testFile := filepath.Join(path, ".preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

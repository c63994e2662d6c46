// Package export writes a project's merged state to a JSONL archive.
//
// The archive is one self-contained file per project: a project record on
// the first line, then one record per hole carrying its documents and
// every measurement row. It is the long-term retention format and the
// input for offline analysis tools.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/hybrid"
	"github.com/boresync/boresync/internal/schema"
)

// Record kinds on the "record" field of each archive line.
const (
	RecordProject = "project"
	RecordHole    = "hole"
)

// ProjectRecord is the first line of an archive.
type ProjectRecord struct {
	Record     string                 `json:"record"`
	ExportedAt time.Time              `json:"exported_at"`
	Summary    *hybrid.ProjectSummary `json:"summary"`
}

// HoleRecord is one archived hole with everything both stores know.
type HoleRecord struct {
	Record       string                  `json:"record"`
	HoleID       string                  `json:"hole_id"`
	Info         *schema.HoleInfo        `json:"info,omitempty"`
	Status       *schema.HoleStatus      `json:"status,omitempty"`
	Measurements []schema.MeasurementRow `json:"measurements"`
}

// Options configures one export run.
type Options struct {
	ProjectID string
	Output    string // archive file path
	DryRun    bool   // count records without writing
}

// Result reports what an export run produced.
type Result struct {
	HolesExported   int
	MeasurementRows int
	LinesWritten    int
	Errors          []string
}

// Exporter reads the merged state through the consistency layer.
type Exporter struct {
	orch   *hybrid.Orchestrator
	store  *fsstore.Store
	logger *log.Logger
}

// New creates an Exporter.
func New(orch *hybrid.Orchestrator, store *fsstore.Store, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{orch: orch, store: store, logger: logger}
}

// Export writes one project's archive. Holes whose documents cannot be
// read are reported in Result.Errors and skipped; the archive still
// covers the rest.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	summary, err := e.orch.GetProjectSummary(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize project: %w", err)
	}

	holeIDs, err := e.store.ListHoles(opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holes: %w", err)
	}

	var out io.Writer
	var tmpPath string
	if opts.DryRun {
		out = io.Discard
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.Output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		// Written to a temp file first so a failed export never leaves a
		// truncated archive behind.
		tmpPath = opts.Output + ".tmp"
		f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)

	if err := encoder.Encode(&ProjectRecord{
		Record:     RecordProject,
		ExportedAt: time.Now().UTC(),
		Summary:    summary,
	}); err != nil {
		return nil, fmt.Errorf("failed to write project record: %w", err)
	}
	result.LinesWritten++

	for _, holeID := range holeIDs {
		data, err := e.orch.GetHoleCompleteData(ctx, opts.ProjectID, holeID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("hole %s: %v", holeID, err))
			continue
		}

		if err := encoder.Encode(&HoleRecord{
			Record:       RecordHole,
			HoleID:       holeID,
			Info:         data.Info,
			Status:       data.Status,
			Measurements: data.Measurements,
		}); err != nil {
			return nil, fmt.Errorf("failed to write hole record %s: %w", holeID, err)
		}
		result.LinesWritten++
		result.HolesExported++
		result.MeasurementRows += len(data.Measurements)
	}

	if !opts.DryRun {
		if err := os.Rename(tmpPath, opts.Output); err != nil {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("failed to finalize archive: %w", err)
		}
	}

	e.logger.Printf("Exported %s: %d holes, %d measurements, %d lines",
		opts.ProjectID, result.HolesExported, result.MeasurementRows, result.LinesWritten)
	return result, nil
}

// ReadArchive parses an archive back into its records, for verification
// and offline tooling.
func ReadArchive(path string) (*ProjectRecord, []*HoleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	decoder := json.NewDecoder(f)

	var project ProjectRecord
	if err := decoder.Decode(&project); err != nil {
		return nil, nil, fmt.Errorf("failed to parse project record: %w", err)
	}
	if project.Record != RecordProject {
		return nil, nil, fmt.Errorf("archive does not start with a project record (got %q)", project.Record)
	}

	var holes []*HoleRecord
	line := 1
	for {
		var hole HoleRecord
		if err := decoder.Decode(&hole); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, fmt.Errorf("invalid record at line %d: %w", line+1, err)
		}
		line++
		if hole.Record != RecordHole {
			return nil, nil, fmt.Errorf("unexpected record kind %q at line %d", hole.Record, line)
		}
		holes = append(holes, &hole)
	}

	return &project, holes, nil
}

package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/storage/object"
	"gfwpro-workflow/internal/shared/telemetry"
	"gfwpro-workflow/internal/shared/util"
)

// DownloadAPI streams a signed result URL.
type DownloadAPI interface {
	Download(ctx context.Context, resultURL string, w io.Writer) (int64, error)
}

// Artifact is a stored result archive. Location is its file path or URI.
type Artifact struct {
	Key        string
	Location   string
	Size       int64
	ListID     string
	AnalysisID string
}

// Fetcher downloads result archives into an object store.
type Fetcher struct {
	API   DownloadAPI
	Store object.ObjectStore
}

// ArtifactName returns {listId}_{analysisId}.zip. Runes outside
// [A-Za-z0-9._-] become '_' and ids containing ".." are rejected.
func ArtifactName(listID, analysisID string) (string, error) {
	return util.SanitizeFileName(fmt.Sprintf("%s_%s.zip", listID, analysisID))
}

// FetchSnapshot downloads the result of a complete snapshot. A complete
// snapshot without a resultUrl yields ErrMissingResultURL and no request is made.
func (f *Fetcher) FetchSnapshot(ctx context.Context, snap gfw.StatusSnapshot, listID, analysisID string) (Artifact, error) {
	if class := snap.Class(); class != gfw.ClassComplete {
		return Artifact{}, fmt.Errorf("cannot fetch result for status %q (%s)", snap.Status, class)
	}
	return f.Fetch(ctx, snap.ResultURL, listID, analysisID)
}

// Fetch downloads resultURL and writes the bytes verbatim to
// {listId}_{analysisId}.zip, replacing any previous artifact.
func (f *Fetcher) Fetch(ctx context.Context, resultURL, listID, analysisID string) (Artifact, error) {
	if strings.TrimSpace(resultURL) == "" {
		return Artifact{}, gfw.NewStepError(gfw.StepDownloadResult, gfw.ErrMissingResultURL, nil)
	}
	if f.API == nil || f.Store == nil {
		return Artifact{}, errors.New("fetcher is not configured")
	}
	name, err := ArtifactName(listID, analysisID)
	if err != nil {
		return Artifact{}, gfw.NewStepError(gfw.StepDownloadResult, gfw.ErrDownloadFailed, err)
	}

	// Buffered so a failed download never replaces a good artifact.
	var buf bytes.Buffer
	if _, err := f.API.Download(ctx, resultURL, &buf); err != nil {
		if !errors.Is(err, gfw.ErrDownloadFailed) {
			err = gfw.NewStepError(gfw.StepDownloadResult, gfw.ErrDownloadFailed, err)
		}
		return Artifact{}, err
	}

	n, err := f.Store.SaveWithKey(ctx, name, "application/zip", &buf)
	if err != nil {
		return Artifact{}, gfw.NewStepError(gfw.StepDownloadResult, gfw.ErrDownloadFailed, fmt.Errorf("write %s: %w", name, err))
	}
	metrics.IncArtifactsDownloaded()
	telemetry.Info("workflow.artifact_saved", map[string]any{
		"list_id":     listID,
		"analysis_id": analysisID,
		"key":         name,
		"bytes":       n,
	})
	return Artifact{Key: name, Location: object.LocationOf(f.Store, name), Size: n, ListID: listID, AnalysisID: analysisID}, nil
}

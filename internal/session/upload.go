package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/filebrowser/internal/metrics"
	"github.com/fruitsalade/filebrowser/pkg/client"
	"github.com/fruitsalade/filebrowser/pkg/models"
	"github.com/fruitsalade/filebrowser/pkg/policy"
	"github.com/fruitsalade/filebrowser/pkg/protocol"
)

// UploadFile uploads file into the current directory.
func (m *Manager) UploadFile(ctx context.Context, file models.UploadFile) (*protocol.UploadResponse, error) {
	return m.UploadFileTo(ctx, file, m.CurrentPath())
}

// UploadFileTo uploads file into dir. A file rejected by the validator sets
// the error and returns without contacting the store. After a successful
// upload the current directory is refreshed; a refresh failure is recorded
// in the state but the upload still reports success.
func (m *Manager) UploadFileTo(ctx context.Context, file models.UploadFile, dir string) (*protocol.UploadResponse, error) {
	if err := m.validate(file); err != nil {
		m.setError(err)
		return nil, err
	}

	var resp *protocol.UploadResponse
	err := m.run("upload", models.JoinPath(dir, file.Name), func() error {
		tracker := m.newProgressTracker([]models.UploadFile{file})
		defer m.setProgress(0)

		r, err := m.store.Upload(ctx, file, dir, tracker.forFile(0))
		metrics.RecordUpload(file.Size, err == nil)
		if err != nil {
			m.setError(err)
			return err
		}
		resp = r
		m.clearError()
		m.refresh(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UploadMany uploads files into the current directory.
func (m *Manager) UploadMany(ctx context.Context, files []models.UploadFile) *BatchResult {
	return m.UploadManyTo(ctx, files, m.CurrentPath())
}

// UploadManyTo uploads every file into dir, joined with each file's Dir.
// All files are attempted; rejected or failed files do not stop the others.
// The listing is refreshed once after every upload has settled, whatever
// their outcome, unless every file was rejected before reaching the store.
func (m *Manager) UploadManyTo(ctx context.Context, files []models.UploadFile, dir string) *BatchResult {
	result := &BatchResult{Results: make([]UploadResult, len(files))}

	var accepted []int
	for i, f := range files {
		result.Results[i].File = f
		if err := m.validate(f); err != nil {
			result.Results[i].Err = err
			continue
		}
		accepted = append(accepted, i)
	}

	if len(accepted) > 0 {
		m.run("upload_many", dir, func() error {
			batch := make([]models.UploadFile, len(accepted))
			for j, i := range accepted {
				batch[j] = files[i]
			}
			tracker := m.newProgressTracker(batch)
			defer m.setProgress(0)

			var g errgroup.Group
			g.SetLimit(m.concurrency)
			for j, i := range accepted {
				g.Go(func() error {
					r, err := m.safeUpload(ctx, files[i], dir, tracker.forFile(j))
					metrics.RecordUpload(files[i].Size, err == nil)
					if err != nil {
						result.Results[i].Err = err
						return nil
					}
					result.Results[i].Path = r.Path
					result.Results[i].Size = r.Size
					return nil
				})
			}
			g.Wait()

			for _, i := range accepted {
				if result.Results[i].Err == nil {
					m.clearError()
					break
				}
			}
			m.refresh(ctx)
			return nil
		})
	}

	for _, r := range result.Results {
		if r.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d of %d uploads failed: %s", result.Failed, len(files), firstError(result))
		m.mu.Lock()
		m.setErrorMessageLocked(msg)
		m.mu.Unlock()
	}

	m.logger.Info("batch upload finished",
		zap.String("dir", dir),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

// safeUpload runs a single store upload, converting a panic into an error.
// Batch uploads run on their own goroutines, outside run's recover.
func (m *Manager) safeUpload(ctx context.Context, file models.UploadFile, dir string, progress client.ProgressFunc) (resp *protocol.UploadResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload %s: unexpected failure: %v", file.Name, r)
		}
	}()
	resp, err = m.store.Upload(ctx, file, dir, progress)
	if err == nil && resp == nil {
		resp = &protocol.UploadResponse{}
	}
	return resp, err
}

func (m *Manager) validate(f models.UploadFile) error {
	if m.validator == nil {
		return nil
	}
	err := m.validator.Validate(f)
	if err != nil {
		rule := "unknown"
		if ve, ok := policy.AsViolation(err); ok {
			rule = string(ve.Rule)
		}
		metrics.RecordPolicyRejection(rule)
		m.logger.Debug("upload rejected by policy",
			zap.String("file", f.Name),
			zap.String("rule", rule),
			zap.Int64("size", f.Size),
			zap.String("type", f.Type),
		)
	}
	return err
}

func firstError(b *BatchResult) string {
	for _, r := range b.Results {
		if r.Err != nil {
			return r.Err.Error()
		}
	}
	return ""
}

// progressTracker folds per-file byte counts into one 0-100 figure.
type progressTracker struct {
	m     *Manager
	mu    sync.Mutex
	total int64
	sent  []int64
}

func (m *Manager) newProgressTracker(files []models.UploadFile) *progressTracker {
	t := &progressTracker{m: m, sent: make([]int64, len(files))}
	for _, f := range files {
		t.total += f.Size
	}
	m.setProgress(0)
	return t
}

func (t *progressTracker) forFile(i int) client.ProgressFunc {
	return func(sent, _ int64) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.sent[i] = sent
		var done int64
		for _, s := range t.sent {
			done += s
		}
		t.m.setProgress(percent(done, t.total))
	}
}

func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(done * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}

package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spongeengine/spongequant/api"
)

// FullyDownloaded reports whether every file of ref already exists under
// dir. Presence is the completion marker, not size: the config patch
// rewrites files in place after download, so sizes drift on purpose.
// Errors listing the remote or statting local files count as not
// downloaded, so broken state is repaired by another download rather
// than trusted.
func (c *Client) FullyDownloaded(ctx context.Context, ref Ref, dir string) bool {
	info, err := c.ModelInfo(ctx, ref)
	if err != nil {
		return false
	}

	for _, sibling := range info.Siblings {
		if skipped(sibling.Name, defaultIgnores) {
			continue
		}

		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(sibling.Name))); err != nil {
			return false
		}
	}

	return true
}

// Download fetches every file of ref into dir, numTransfers at a time.
// Files already present with the right size are kept. Interrupted files
// resume from their .partial remainder.
func (c *Client) Download(ctx context.Context, ref Ref, dir string, fn func(api.ProgressResponse)) error {
	info, err := c.ModelInfo(ctx, ref)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(numTransfers)
	for _, sibling := range info.Siblings {
		if skipped(sibling.Name, defaultIgnores) {
			continue
		}

		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			return c.downloadFile(ctx, ref, sibling, dir, fn)
		})
	}

	return g.Wait()
}

func (c *Client) downloadFile(ctx context.Context, ref Ref, sibling Sibling, dir string, fn func(api.ProgressResponse)) error {
	dest := filepath.Join(dir, filepath.FromSlash(sibling.Name))

	if fi, err := os.Stat(dest); err == nil && (sibling.Size == 0 || fi.Size() == sibling.Size) {
		fn(api.ProgressResponse{
			Status:    "using existing file " + sibling.Name,
			Digest:    sibling.Name,
			Total:     fi.Size(),
			Completed: fi.Size(),
		})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	partial := dest + ".partial"

	var lastErr error
	for try := range maxRetries {
		if try > 0 {
			if err := backoff(ctx, try); err != nil {
				return err
			}
		}

		lastErr = c.fetchFile(ctx, ref, sibling, partial, fn)
		if lastErr == nil {
			return os.Rename(partial, dest)
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// fetchFile performs one download attempt, appending to whatever partial
// content a previous attempt left behind.
func (c *Client) fetchFile(ctx context.Context, ref Ref, sibling Sibling, partial string, fn func(api.ProgressResponse)) error {
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	requestURL := c.base.JoinPath(ref.Owner, ref.Name, "resolve", "main", sibling.Name)
	req, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}

	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// no range support, start over
		if err := f.Truncate(0); err != nil {
			return err
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}

		offset = 0
	case http.StatusPartialContent:
	default:
		return checkResponse(resp)
	}

	total := sibling.Size
	if total == 0 {
		total = offset + resp.ContentLength
	}

	w := &progressWriter{
		status:    "downloading " + sibling.Name,
		name:      sibling.Name,
		total:     total,
		completed: offset,
		fn:        fn,
	}
	w.emit()

	if _, err := io.Copy(io.MultiWriter(f, w), resp.Body); err != nil {
		return err
	}

	if sibling.Size > 0 && w.completed != sibling.Size {
		return fmt.Errorf("file %s: size mismatch: %d != %d", sibling.Name, w.completed, sibling.Size)
	}

	w.emit()
	return nil
}

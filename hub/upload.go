package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spongeengine/spongequant/api"
)

// CreateRepo creates the repository for ref if it does not exist yet.
// An already existing repository is not an error.
func (c *Client) CreateRepo(ctx context.Context, ref Ref, private bool) error {
	body, err := json.Marshal(map[string]any{
		"name":    ref.String(),
		"type":    "model",
		"private": private,
	})
	if err != nil {
		return err
	}

	requestURL := c.base.JoinPath("api", "repos", "create")
	req, err := c.newRequest(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}

	return checkResponse(resp)
}

// Upload pushes every file under dir to ref, numTransfers at a time.
// Files matching an ignore pattern are skipped, as are files the hub
// already has at the same size.
func (c *Client) Upload(ctx context.Context, ref Ref, dir string, ignores []string, fn func(api.ProgressResponse)) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if skipped(rel, ignores) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(numTransfers)
	for _, name := range files {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			return c.uploadFile(ctx, ref, dir, name, fn)
		})
	}

	return g.Wait()
}

func (c *Client) uploadFile(ctx context.Context, ref Ref, dir, name string, fn func(api.ProgressResponse)) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	if size, err := c.remoteSize(ctx, ref, name); err == nil && size == fi.Size() {
		fn(api.ProgressResponse{
			Status:    "using existing file " + name,
			Digest:    name,
			Total:     fi.Size(),
			Completed: fi.Size(),
		})
		return nil
	}

	w := &progressWriter{
		status: "uploading " + name,
		name:   name,
		total:  fi.Size(),
		fn:     fn,
	}
	w.emit()

	requestURL := c.base.JoinPath("api", ref.Owner, ref.Name, "upload", "main", name)
	req, err := c.newRequest(ctx, http.MethodPut, requestURL, io.TeeReader(f, w))
	if err != nil {
		return err
	}

	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}

	w.emit()
	return nil
}

// remoteSize resolves the size the hub has for one file of ref, or an
// error if the file is not there.
func (c *Client) remoteSize(ctx context.Context, ref Ref, name string) (int64, error) {
	requestURL := c.base.JoinPath(ref.Owner, ref.Name, "resolve", "main", name)
	req, err := c.newRequest(ctx, http.MethodHead, requestURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return 0, err
	}

	return resp.ContentLength, nil
}

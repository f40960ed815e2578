// Package uploader implements the dedup-and-upload stage of the backup
// pipeline: for every chunk produced by the chunker, search the server by
// label and reuse an existing chunk id if one exists, otherwise encrypt
// and upload. Uploads run with bounded concurrency while preserving each
// file's chunk order.
package uploader

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/build"
	"github.com/obnam-mirror/obnam2/client/chunkcodec"
	"github.com/obnam-mirror/obnam2/client/chunker"
	"github.com/obnam-mirror/obnam2/client/serverclient"
	"github.com/obnam-mirror/obnam2/persist"
)

// ServerClient is the subset of the chunk server's HTTP API the uploader
// needs. A real implementation lives in client/serverclient; tests supply
// an in-memory fake.
type ServerClient interface {
	// SearchByLabel returns every known chunk id carrying label.
	SearchByLabel(ctx context.Context, label string) ([]string, error)
	// Upload stores body under label and returns the server-assigned id.
	Upload(ctx context.Context, label string, body []byte) (string, error)
}

// Counters accumulates per-run upload/reuse performance counters.
type Counters struct {
	ChunksUploaded int64
	ChunksReused   int64
}

// Uploader dedups and uploads chunks with bounded worker concurrency.
type Uploader struct {
	client      ServerClient
	codec       *chunkcodec.Codec
	concurrency int
	log         *persist.Logger

	mu       sync.Mutex
	counters Counters
}

// defaultConcurrency is a small, fixed number of uploader workers.
const defaultConcurrency = 16

// New builds an Uploader with the given concurrency (0 selects the default).
func New(client ServerClient, codec *chunkcodec.Codec, concurrency int, log *persist.Logger) *Uploader {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Uploader{client: client, codec: codec, concurrency: concurrency, log: log}
}

// Counters returns a snapshot of the accumulated upload/reuse counts.
func (u *Uploader) Counters() Counters {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counters
}

type result struct {
	seq     int
	chunkID string
	err     error
}

// UploadFile dedups and uploads every chunk of one file, returning the
// ordered list of chunk ids regardless of the order individual uploads
// complete in: each chunk is tagged with its sequence number, and results
// are reassembled in that order downstream.
func (u *Uploader) UploadFile(ctx context.Context, kind string, chunks []chunker.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	jobs := make(chan int, len(chunks))
	results := make([]result, len(chunks))
	var wg sync.WaitGroup

	workers := u.concurrency
	if workers > len(chunks) {
		workers = len(chunks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := range jobs {
				id, err := u.uploadOne(ctx, kind, chunks[seq])
				results[seq] = result{seq: seq, chunkID: id, err: err}
			}
		}()
	}
	// Repeated chunks within the file share one job, so workers never race
	// each other to upload the same label.
	firstSeq := make(map[string]int, len(chunks))
	for seq, c := range chunks {
		if _, dup := firstSeq[c.Label]; !dup {
			firstSeq[c.Label] = seq
			jobs <- seq
		}
	}
	close(jobs)
	wg.Wait()

	ids := make([]string, len(chunks))
	for seq, c := range chunks {
		r := results[firstSeq[c.Label]]
		if r.err != nil {
			return nil, errors.AddContext(r.err, "could not upload chunk")
		}
		ids[seq] = r.chunkID
	}
	u.mu.Lock()
	u.counters.ChunksReused += int64(len(chunks) - len(firstSeq))
	u.mu.Unlock()
	return ids, nil
}

func (u *Uploader) uploadOne(ctx context.Context, kind string, chunk chunker.Chunk) (string, error) {
	existing, err := u.client.SearchByLabel(ctx, chunk.Label)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		u.mu.Lock()
		u.counters.ChunksReused++
		u.mu.Unlock()
		return existing[0], nil
	}

	envelope := u.codec.Encrypt(chunk.Data, []byte(kind))

	var id string
	var fatal error
	retryErr := build.Retry(5, 200*time.Millisecond, func() error {
		var uploadErr error
		id, uploadErr = u.client.Upload(ctx, chunk.Label, envelope)
		if isFatalUploadError(uploadErr) {
			// Not worth retrying: stop burning attempts and surface it
			// immediately as the chunk's final error.
			fatal = uploadErr
			return nil
		}
		return uploadErr
	})
	if fatal != nil {
		return "", fatal
	}
	if retryErr != nil {
		return "", retryErr
	}

	u.mu.Lock()
	u.counters.ChunksUploaded++
	u.mu.Unlock()
	return id, nil
}

// isFatalUploadError reports whether err is a 4xx server response that
// retrying won't fix (a malformed request, an auth failure, a conflict).
// 408 Request Timeout and 429 Too Many Requests are excluded since both are
// transient by nature and worth another attempt.
func isFatalUploadError(err error) bool {
	statusErr, ok := err.(*serverclient.StatusError)
	if !ok {
		return false
	}
	code := statusErr.StatusCode
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

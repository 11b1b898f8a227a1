package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Fetcher is an in-memory dataset.Fetcher. URLs that were never Set are
// unavailable.
//
// Thread-safety: all methods are safe for concurrent use.
type Fetcher struct {
	mu       sync.Mutex
	files    map[string][]byte
	modTimes map[string]time.Time
	failures map[string]error
	fetched  []string
}

// NewFetcher creates an empty fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		files:    make(map[string][]byte),
		modTimes: make(map[string]time.Time),
		failures: make(map[string]error),
	}
}

// Set serves data at url with the given modification time.
func (f *Fetcher) Set(url string, data []byte, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[url] = data
	f.modTimes[url] = modTime
}

// Remove stops serving url.
func (f *Fetcher) Remove(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, url)
	delete(f.modTimes, url)
}

// FailWith makes every Fetch of url return err.
func (f *Fetcher) FailWith(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = err
}

// Fetched returns the URLs fetched so far, in order.
func (f *Fetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// Available implements dataset.Fetcher.
func (f *Fetcher) Available(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[url]
	return ok, nil
}

// ModTime implements dataset.Fetcher.
func (f *Fetcher) ModTime(ctx context.Context, url string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mt, ok := f.modTimes[url]
	if !ok {
		return time.Time{}, fmt.Errorf("%s: not found", url)
	}
	return mt, nil
}

// Fetch implements dataset.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url, dst string) error {
	f.mu.Lock()
	data, ok := f.files[url]
	failure := f.failures[url]
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if failure != nil {
		return failure
	}
	if !ok {
		return fmt.Errorf("%s: not found", url)
	}
	return os.WriteFile(dst, data, 0o644)
}

// Package download fetches model artifacts and tracks them in a persistent manifest.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"spokestack-tray/internal/domain"
)

const (
	defaultExtension = "tflite"
	defaultTimeout   = 10 * time.Minute
	userAgent        = "spokestack-tray"
)

// NetworkInfo reports the class of the active network connection.
type NetworkInfo interface {
	Class(ctx context.Context) (domain.NetworkClass, error)
}

// Confirmer asks the user whether a cellular download may proceed. It may
// block for as long as the user takes to answer.
type Confirmer interface {
	ConfirmCellular(ctx context.Context) (bool, error)
}

// ManifestStore persists the download manifest.
type ManifestStore interface {
	LoadManifest() (domain.Manifest, error)
	SaveManifest(domain.Manifest) error
}

// Options tunes one Acquire call.
type Options struct {
	// Extension is appended to the id to form the filename. Defaults to tflite.
	Extension string
	// Overwrite downloads again even when a cached file exists.
	Overwrite bool
	// ForceCellular skips the confirmation prompt on metered networks.
	ForceCellular bool
	// JoinInFlight waits for an in-progress transfer of the same id and
	// shares its result instead of returning immediately with no path.
	JoinInFlight bool
	// Consent, when set, answers the cellular prompt for every Acquire that
	// carries it, so the user is asked at most once.
	Consent *Consent
	// Progress receives percent complete in 10% steps when the size is known.
	Progress func(percent int)
}

func (o Options) extension() string {
	ext := strings.TrimPrefix(strings.TrimSpace(o.Extension), ".")
	if ext == "" {
		return defaultExtension
	}
	return ext
}

// Consent remembers the first answer to the cellular prompt.
type Consent struct {
	mu       sync.Mutex
	answered bool
	granted  bool
}

// NewConsent returns a consent that has not asked yet.
func NewConsent() *Consent {
	return &Consent{}
}

// ask prompts through confirmer unless an earlier call already got an
// answer. Concurrent callers wait for the prompt in progress. A nil Consent
// prompts every time.
func (c *Consent) ask(ctx context.Context, confirmer Confirmer) (bool, error) {
	if c == nil {
		return confirmer.ConfirmCellular(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answered {
		return c.granted, nil
	}
	granted, err := confirmer.ConfirmCellular(ctx)
	if err != nil {
		return false, err
	}
	c.answered, c.granted = true, granted
	return granted, nil
}

// Config wires a Downloader's collaborators.
type Config struct {
	Fs        afero.Fs
	Dir       string
	Client    *http.Client
	Network   NetworkInfo
	Confirmer Confirmer
	Store     ManifestStore
	Logger    *zap.Logger
	Timeout   time.Duration
}

// Downloader acquires model files, de-duplicating concurrent requests per id.
type Downloader struct {
	fs        afero.Fs
	dir       string
	client    *http.Client
	network   NetworkInfo
	confirmer Confirmer
	store     ManifestStore
	logger    *zap.Logger
	timeout   time.Duration

	mu       sync.Mutex
	manifest domain.Manifest
	loaded   bool
	inFlight map[string]struct{}
	flight   singleflight.Group
}

// New builds a downloader. Nil collaborators fall back to the OS filesystem,
// the default HTTP client, an unrestricted network and an in-memory manifest.
func New(cfg Config) *Downloader {
	d := &Downloader{
		fs:        cfg.Fs,
		dir:       cfg.Dir,
		client:    cfg.Client,
		network:   cfg.Network,
		confirmer: cfg.Confirmer,
		store:     cfg.Store,
		logger:    cfg.Logger,
		timeout:   cfg.Timeout,
		inFlight:  make(map[string]struct{}),
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	return d
}

// Dir returns the directory model files are written to.
func (d *Downloader) Dir() string {
	return d.dir
}

// Acquire returns a local path for the resource at rawURL, downloading it
// under id unless a verified cached copy exists. When a transfer for id is
// already running and opts.JoinInFlight is false, it returns "" and a nil
// error without starting a second transfer or asking about the network.
// The network check belongs to the transfer, so callers that join it share
// its outcome.
func (d *Downloader) Acquire(ctx context.Context, rawURL, id string, opts Options) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("%w: url argument is required for downloading", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: file id argument is required for downloading", domain.ErrInvalidArgument)
	}

	if !opts.Overwrite {
		cached, ok, err := d.cached(id)
		if err != nil {
			return "", err
		}
		if ok {
			d.logger.Debug("returning cached model file", zap.String("id", id), zap.String("path", cached))
			return cached, nil
		}
	}

	filename := id + "." + opts.extension()

	d.mu.Lock()
	_, busy := d.inFlight[id]
	if busy && !opts.JoinInFlight {
		d.mu.Unlock()
		d.logger.Info("download already in progress", zap.String("id", id))
		return "", nil
	}
	if !busy {
		d.inFlight[id] = struct{}{}
	}
	ch := d.flight.DoChan(id, func() (any, error) {
		defer d.settle(id)
		if err := d.checkNetwork(ctx, opts); err != nil {
			return "", err
		}
		return d.transfer(rawURL, id, filename, opts.Progress)
	})
	d.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InFlight reports whether a transfer for id is running.
func (d *Downloader) InFlight(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[id]
	return ok
}

// Path returns the cached path for id when its file exists on disk.
func (d *Downloader) Path(id string) (string, bool, error) {
	return d.cached(id)
}

// Entries returns a snapshot of the manifest.
func (d *Downloader) Entries() (domain.Manifest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(); err != nil {
		return nil, err
	}
	out := make(domain.Manifest, len(d.manifest))
	copy(out, d.manifest)
	return out, nil
}

// Remove deletes the manifest entry and file of each id. A failure for one id
// is logged and does not stop the others; all failures are returned joined.
func (d *Downloader) Remove(ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(); err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		entry, ok := d.manifest.Find(id)
		if !ok {
			continue
		}
		d.manifest, _ = d.manifest.Delete(id)

		path := filepath.Join(d.dir, entry.Filename)
		if err := d.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("remove model file", zap.String("id", id), zap.String("path", path), zap.Error(err))
			errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
			continue
		}
		d.logger.Info("removed model file", zap.String("id", id), zap.String("path", path))
	}

	if err := d.persistLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// cached resolves id through the manifest and verifies the file on disk.
func (d *Downloader) cached(id string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(); err != nil {
		return "", false, err
	}
	entry, ok := d.manifest.Find(id)
	if !ok {
		return "", false, nil
	}
	path := filepath.Join(d.dir, entry.Filename)
	info, err := d.fs.Stat(path)
	if err != nil || info.IsDir() {
		return "", false, nil
	}
	return path, true, nil
}

func (d *Downloader) checkNetwork(ctx context.Context, opts Options) error {
	if d.network == nil {
		return nil
	}
	class, err := d.network.Class(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}

	switch {
	case class.Unrestricted():
		return nil
	case class == domain.NetworkCellular:
		if opts.ForceCellular {
			return nil
		}
		if d.confirmer == nil {
			return fmt.Errorf("%w: cellular download needs confirmation", domain.ErrNetworkUnavailable)
		}
		ok, err := opts.Consent.ask(ctx, d.confirmer)
		if err != nil {
			return fmt.Errorf("%w: confirm cellular download: %v", domain.ErrNetworkUnavailable, err)
		}
		if !ok {
			return fmt.Errorf("%w: cellular download declined", domain.ErrNetworkUnavailable)
		}
		return nil
	default:
		return fmt.Errorf("%w: network class %s", domain.ErrNetworkUnavailable, class)
	}
}

// transfer streams rawURL into dir/filename through a temporary file and
// records the result in the manifest.
func (d *Downloader) transfer(rawURL, id, filename string, progress func(int)) (string, error) {
	destinationPath := filepath.Join(d.dir, filename)
	fail := func(format string, err error) (string, error) {
		return "", fmt.Errorf("%w: %s: %s: %v", domain.ErrDownloadFailed, id, format, err)
	}

	if err := d.fs.MkdirAll(d.dir, 0o755); err != nil {
		return fail("prepare destination directory", err)
	}

	tmpPath := destinationPath + ".download"
	if err := d.fs.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail("remove stale temp file", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail("build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	d.logger.Info("downloading model file", zap.String("id", id), zap.String("url", rawURL))
	resp, err := d.client.Do(req)
	if err != nil {
		return fail("request download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail("unexpected HTTP status", errors.New(resp.Status))
	}

	file, err := d.fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fail("create temporary file", err)
	}

	var w io.Writer = file
	if progress != nil && resp.ContentLength > 0 {
		w = newProgressWriter(file, resp.ContentLength, progress)
	}
	_, copyErr := io.Copy(w, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = d.fs.Remove(tmpPath)
		return fail("write destination file", copyErr)
	}
	if closeErr != nil {
		_ = d.fs.Remove(tmpPath)
		return fail("close destination file", closeErr)
	}

	if err := d.fs.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = d.fs.Remove(tmpPath)
		return fail("remove old destination file", err)
	}
	if err := d.fs.Rename(tmpPath, destinationPath); err != nil {
		_ = d.fs.Remove(tmpPath)
		return fail("move downloaded file into place", err)
	}

	if err := d.record(domain.ModelFile{ID: id, Filename: filename}); err != nil {
		return "", err
	}
	d.logger.Info("model file saved", zap.String("id", id), zap.String("path", destinationPath))
	return destinationPath, nil
}

func (d *Downloader) record(file domain.ModelFile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(); err != nil {
		return err
	}
	d.manifest = d.manifest.Upsert(file)
	return d.persistLocked()
}

// settle clears the in-flight mark for id whatever the transfer outcome.
func (d *Downloader) settle(id string) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.flight.Forget(id)
	d.mu.Unlock()
}

func (d *Downloader) loadLocked() error {
	if d.loaded {
		return nil
	}
	if d.store != nil {
		manifest, err := d.store.LoadManifest()
		if err != nil {
			return fmt.Errorf("load download manifest: %w", err)
		}
		d.manifest = manifest
	}
	d.loaded = true
	return nil
}

func (d *Downloader) persistLocked() error {
	if d.store == nil {
		return nil
	}
	if err := d.store.SaveManifest(d.manifest); err != nil {
		return fmt.Errorf("save download manifest: %w", err)
	}
	return nil
}

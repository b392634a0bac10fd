// Package tilejsonreader implements a TileSource over a remote tile
// service described by a TileJSON document: fetching the document itself
// to learn the `{z}/{x}/{y}` URL template, then GETting individual tiles
// with bounded retries and exponential backoff.
package tilejsonreader

import (
	"context"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Retry bounds the retry/backoff behaviour of a Reader's tile fetches.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetry is the default used by the from_tilejson operator.
func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
}

// Reader is a TileSource backed by a remote tile service.
type Reader struct {
	client   *http.Client
	limiter  *rate.Limiter
	retry    Retry
	limits   tilestream.ConcurrencyLimits
	template string
	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open fetches the TileJSON document at url and builds a Reader from its
// `tiles` URL template and bbox/zoom fields.
func Open(ctx context.Context, client *http.Client, url string, retry Retry) (*Reader, error) {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Reader{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(retry.BaseDelay), 1),
		retry:   retry,
		limits:  tilestream.DefaultConcurrencyLimits(runtime.NumCPU()),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Wrapf(err, "building request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, xerrors.Wrapf(err, "fetching tilejson %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("tilejson %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(err, "reading tilejson body")
	}
	tj, err := tilesource.ParseTileJSON(body)
	if err != nil {
		return nil, err
	}
	if len(tj.Tiles) == 0 {
		return nil, xerrors.Errorf("tilejson %s has no tile url template", url)
	}
	r.tilejson = tj
	r.template = tj.Tiles[0]

	pyramid := coord.NewPyramid()
	if err := pyramid.IncludeGeoBBox(coord.GeoBBox{
		West: tj.Bounds[0], South: tj.Bounds[1], East: tj.Bounds[2], North: tj.Bounds[3],
	}, tj.MinZoom, tj.MaxZoom); err != nil {
		return nil, err
	}
	format := codec.FormatFromExtension(strings.TrimPrefix(pathExt(r.template), "."))
	compression := codec.CompressionNone
	if format.IsVector() {
		compression = codec.CompressionGzip
	}
	r.meta = tilesource.Metadata{
		TileFormat:      format,
		TileCompression: compression,
		BBoxPyramid:     *pyramid,
		Traversal:       traversal.Default(),
	}
	return r, nil
}

func pathExt(template string) string {
	if i := strings.LastIndex(template, "."); i >= 0 {
		return template[i:]
	}
	return ""
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("tilejson") }
func (r *Reader) Metadata() *tilesource.Metadata     { return &r.meta }
func (r *Reader) TileJSON() *tilesource.TileJSON     { return &r.tilejson }

func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, r, c)
}

// GetTileStream fetches bbox's tiles concurrently, bounded by the I/O
// concurrency limit rather than the CPU one: each fetch is dominated by
// network wait, not compute. The stream is unordered.
func (r *Reader) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	return tilestream.FromBBoxAsyncParallel(ctx, bbox, r.limits, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		data, ok, err := r.fetch(ctx, c)
		if err != nil || !ok {
			return tile.Tile{}, false, err
		}
		return tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat), true, nil
	}), nil
}

func (r *Reader) url(c coord.TileCoord) string {
	u := r.template
	u = strings.ReplaceAll(u, "{z}", strconv.Itoa(int(c.Level)))
	u = strings.ReplaceAll(u, "{x}", strconv.Itoa(int(c.X)))
	u = strings.ReplaceAll(u, "{y}", strconv.Itoa(int(c.Y)))
	return u
}

// fetch retrieves one tile, retrying transient failures with exponential
// backoff up to retry.MaxAttempts; a 404 response is treated as a present-
// but-absent tile, never as an error.
func (r *Reader) fetch(ctx context.Context, c coord.TileCoord) ([]byte, bool, error) {
	var lastErr error
	delay := r.retry.BaseDelay
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, false, xerrors.Wrap(err, "waiting to retry tile fetch")
			}
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(c), nil)
		if err != nil {
			return nil, false, xerrors.Wrapf(err, "building request for tile %s", c)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, false, nil
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return body, true, nil
		case resp.StatusCode >= 500:
			lastErr = xerrors.Errorf("tile %s: transient status %d", c, resp.StatusCode)
			continue
		default:
			return nil, false, xerrors.Errorf("tile %s: unexpected status %d", c, resp.StatusCode)
		}
	}
	return nil, false, xerrors.Wrapf(lastErr, "fetching tile %s after %d attempts", c, r.retry.MaxAttempts)
}

package fetch

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/orrn/fileprint/internal/core"
)

const (
	defaultFilename  = "download"
	defaultUserAgent = "fileprint/1.0"
	sniffLen         = 3072
)

// HTTPFetcher downloads a single resource into a scratch directory.
type HTTPFetcher struct {
	secure   *http.Client
	insecure *http.Client
	logger   *zap.Logger
}

func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		secure:   newClient(false),
		insecure: newClient(true),
		logger:   logger.Named("fetch"),
	}
}

func newClient(skipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify} //nolint:gosec
	return &http.Client{Transport: transport}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, dir string, opts core.FetchOptions) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = core.DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &core.FetchError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	client := f.insecure
	if opts.TLSVerify {
		client = f.secure
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", wrapError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &core.FetchError{URL: rawURL, Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}

	body := bufio.NewReaderSize(resp.Body, sniffLen)
	head, _ := body.Peek(sniffLen)

	name := ResolveFilename(resp.Header.Get("Content-Disposition"), resp.Request.URL)
	if path.Ext(name) == "" {
		name += InferExtension(head, resp.Header.Get("Content-Type"))
	}
	target := filepath.Join(dir, name)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		return "", wrapError(rawURL, copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to close download file: %w", closeErr)
	}

	f.logger.Debug("downloaded",
		zap.String("url", rawURL),
		zap.String("filename", name),
		zap.Int64("bytes", written),
	)
	return name, nil
}

// ResolveFilename prefers the Content-Disposition filename and falls back to
// the last path segment of the final request url.
func ResolveFilename(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := sanitize(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u != nil {
		seg := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		if name := sanitize(seg); name != "" {
			return name
		}
	}
	return defaultFilename
}

// InferExtension names a file that arrived without one, from its leading
// bytes first and then from the declared Content-Type. It returns "" when
// neither is conclusive.
func InferExtension(head []byte, contentType string) string {
	if len(head) > 0 {
		if ext := mimetype.Detect(head).Extension(); ext != "" {
			return ext
		}
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if m := mimetype.Lookup(mediaType); m != nil {
		return m.Extension()
	}
	return ""
}

func sanitize(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

func wrapError(rawURL string, err error) error {
	fe := &core.FetchError{URL: rawURL, Err: err}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		fe.Timeout = true
		fe.Message = fmt.Sprintf("request timed out: %v", err)
	}
	return fe
}

// Timeout reports whether err is a fetch timeout.
func Timeout(err error) bool {
	var fe *core.FetchError
	return errors.As(err, &fe) && fe.Timeout
}

var _ core.Fetcher = (*HTTPFetcher)(nil)

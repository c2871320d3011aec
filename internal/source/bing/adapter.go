package bing

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/bingwall/internal/domain"
	"github.com/timmy/bingwall/internal/source"
)

const (
	SourceID = "bing"

	DefaultHost = "https://www.bing.com"
	DefaultPath = "/HPImageArchive.aspx"
)

// Config holds configuration for the Bing archive adapter.
type Config struct {
	Host      string
	Path      string
	Market    string
	Timeout   time.Duration // zero leaves requests unbounded
	UserAgent string
}

// Adapter implements source.Archive for the Bing image archive.
type Adapter struct {
	client *resty.Client
	host   *url.URL
	path   string
	market string
}

// NewAdapter creates a new Bing adapter.
// Parameters:
//   - cfg: archive location, market and HTTP settings.
//
// Returns:
//   - *Adapter: initialized adapter.
//   - error: non-nil if the host is not an absolute URL.
func NewAdapter(cfg *Config) (*Adapter, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	base, err := url.Parse(strings.TrimSuffix(host, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid archive host %q", host)
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	client := resty.New()
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Adapter{
		client: client,
		host:   base,
		path:   "/" + strings.TrimPrefix(path, "/"),
		market: cfg.Market,
	}, nil
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// archiveResponse mirrors the XML flavour of HPImageArchive.aspx.
type archiveResponse struct {
	Images []archiveImage `xml:"image"`
}

type archiveImage struct {
	StartDate     string `xml:"startdate"`
	EndDate       string `xml:"enddate"`
	URL           string `xml:"url"`
	URLBase       string `xml:"urlBase"`
	Copyright     string `xml:"copyright"`
	CopyrightLink string `xml:"copyrightlink"`
	Headline      string `xml:"headline"`
}

// List queries the archive for the n most recent images.
func (a *Adapter) List(ctx context.Context, n int) ([]domain.Wallpaper, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "xml",
			"idx":    "0",
			"n":      strconv.Itoa(n),
			"mkt":    a.market,
		}).
		Get(a.host.String() + a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s", source.ErrStatus, resp.Status())
	}

	var parsed archiveResponse
	if err := xml.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse archive response: %w", err)
	}

	wallpapers := make([]domain.Wallpaper, 0, len(parsed.Images))
	for _, img := range parsed.Images {
		imageURL, err := a.resolve(img.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid image url %q for %s: %w", img.URL, img.StartDate, err)
		}
		wallpapers = append(wallpapers, domain.Wallpaper{
			StartDate:     strings.TrimSpace(img.StartDate),
			EndDate:       strings.TrimSpace(img.EndDate),
			URL:           imageURL,
			Description:   strings.TrimSpace(img.Copyright),
			Title:         strings.TrimSpace(img.Headline),
			CopyrightLink: img.CopyrightLink,
		})
	}
	return wallpapers, nil
}

// FetchImage downloads the image at an absolute URL.
func (a *Adapter) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := a.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s for %s", source.ErrStatus, resp.Status(), imageURL)
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("empty image body for %s", imageURL)
	}
	return body, nil
}

// resolve turns the archive's host-relative image path into an absolute URL.
// An empty reference stays empty.
func (a *Adapter) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(ref, "/") && u.Scheme == "" {
		// "th?id=..." is host-relative too
		u, err = url.Parse("/" + ref)
		if err != nil {
			return "", err
		}
	}
	return a.host.ResolveReference(u).String(), nil
}

// Package registry provides a client for the FHIR Package Registry.
//
// The FHIR Package Registry (https://packages.fhir.org) hosts core
// packages and Implementation Guides. IG packages frequently ship
// StructureDefinitions with differentials only; this client downloads
// and caches packages so their definitions can be loaded and their
// snapshots generated locally.
package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	fhirsnapshot "github.com/gofhir/snapshot"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheDir is the default location for cached packages,
	// relative to the user's home directory. It matches the layout other
	// FHIR tooling uses, so packages are shared between tools.
	DefaultCacheDir = ".fhir/packages"

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"

	// maxEntrySize caps a single extracted file to guard against
	// decompression bombs.
	maxEntrySize = 100 * 1024 * 1024
)

// Client downloads and caches FHIR packages.
type Client struct {
	httpClient  *http.Client
	registryURL string
	cacheDir    string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		c.registryURL = url
	}
}

// WithCacheDir sets a custom cache directory.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		registryURL: DefaultRegistryURL,
		cacheDir:    filepath.Join(homeDir, DefaultCacheDir),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackageManifest is the package.json inside a FHIR package.
type PackageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	FHIRVersions []string          `json:"fhirVersions"`
	Dependencies map[string]string `json:"dependencies"`
	Canonical    string            `json:"canonical"`
	Title        string            `json:"title"`
	Type         string            `json:"type"`
}

// packument is the registry's metadata document for one package name.
type packument struct {
	Name     string            `json:"name"`
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]struct {
		Version     string `json:"version"`
		FHIRVersion string `json:"fhirVersion"`
		URL         string `json:"url"`
		Dist        struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
}

// fetchPackument retrieves the registry metadata for a package name.
func (c *Client) fetchPackument(ctx context.Context, name string) (*packument, error) {
	url := fmt.Sprintf("%s/%s", c.registryURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fhirsnapshot.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("package %s not found (status %d)", name, resp.StatusCode)
	}

	var doc packument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", name, err)
	}
	return &doc, nil
}

// ResolveVersion turns "latest" or "" into a concrete version number.
func (c *Client) ResolveVersion(ctx context.Context, name, version string) (string, error) {
	if version != VersionLatest && version != "" {
		return version, nil
	}
	doc, err := c.fetchPackument(ctx, name)
	if err != nil {
		return "", err
	}
	latest, ok := doc.DistTags[VersionLatest]
	if !ok {
		return "", fmt.Errorf("no latest version for package %s", name)
	}
	return latest, nil
}

// GetPackage ensures a package version is available locally, downloading
// and extracting it if needed, and returns the path to it.
func (c *Client) GetPackage(ctx context.Context, name, version string) (string, error) {
	version, err := c.ResolveVersion(ctx, name, version)
	if err != nil {
		return "", err
	}

	packageDir := c.packagePath(name, version)
	if c.isCached(packageDir) {
		return packageDir, nil
	}

	doc, err := c.fetchPackument(ctx, name)
	if err != nil {
		return "", err
	}
	versionInfo, ok := doc.Versions[version]
	if !ok {
		return "", fmt.Errorf("version %s not found for package %s", version, name)
	}
	tarballURL := versionInfo.Dist.Tarball
	if tarballURL == "" {
		tarballURL = versionInfo.URL
	}
	if tarballURL == "" {
		return "", fmt.Errorf("no download URL for %s@%s", name, version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fhirsnapshot.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s@%s: %w", name, version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s@%s: status %d", name, version, resp.StatusCode)
	}

	if err := os.MkdirAll(packageDir, 0o755); err != nil {
		return "", err
	}
	if err := extractTarGz(resp.Body, packageDir); err != nil {
		os.RemoveAll(packageDir)
		return "", fmt.Errorf("extracting %s@%s: %w", name, version, err)
	}
	return packageDir, nil
}

// ReadManifest reads the package.json of a downloaded package.
func (c *Client) ReadManifest(packageDir string) (*PackageManifest, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, "package", "package.json"))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(packageDir, "package.json"))
		if err != nil {
			return nil, fmt.Errorf("reading package.json: %w", err)
		}
	}

	var manifest PackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	return &manifest, nil
}

// ListCachedPackages returns the names of all packages in the cache.
func (c *Client) ListCachedPackages() ([]string, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var packages []string
	for _, entry := range entries {
		if entry.IsDir() {
			packages = append(packages, entry.Name())
		}
	}
	return packages, nil
}

// ClearCache removes all cached packages.
func (c *Client) ClearCache() error {
	return os.RemoveAll(c.cacheDir)
}

// CacheDir returns the cache directory path.
func (c *Client) CacheDir() string {
	return c.cacheDir
}

func (c *Client) packagePath(name, version string) string {
	safeName := strings.ReplaceAll(name, "/", "-")
	return filepath.Join(c.cacheDir, fmt.Sprintf("%s#%s", safeName, version))
}

// isCached treats the presence of package.json as the marker for a
// completely extracted package.
func (c *Client) isCached(packageDir string) bool {
	if _, err := os.Stat(filepath.Join(packageDir, "package", "package.json")); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(packageDir, "package.json"))
	return err == nil
}

// extractTarGz extracts a tar.gz archive into destDir, rejecting entries
// that would escape it.
func extractTarGz(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, header.Name) //nolint:gosec // G305: checked below
		if !strings.HasPrefix(target, cleanDest) {
			return fmt.Errorf("invalid tar path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, io.LimitReader(tr, maxEntrySize)); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/store"
)

// Keyring exports the repository's public signing key as ASCII-armored
// text; internal/signer.Signer satisfies it. Resolve calls it only for
// `build >= 5004` queries (spec.md §4.3), and only when the caller wired
// one in — a core without a configured signer simply returns no keyrings.
type Keyring interface {
	ExportKeyring(ctx context.Context) (string, error)
}

// Query is the normalized input to Resolve, after arch/language
// normalization and major/beta derivation (spec.md §4.3).
type Query struct {
	Arch     string
	Build    int
	Major    int
	Language string
	Beta     bool
}

// Result is Resolve's output: a bare array for pre-5.1 appliances, or the
// `{packages, keyrings}` envelope for `build >= 5004`.
type Result struct {
	Packages []Entry
	Envelope bool
	Keyrings []string
}

// Resolver wraps the store's three-stage CTE with the 600-second
// memoization spec.md §4.3 requires.
type Resolver struct {
	store   *store.Store
	cache   *ttlCache
	baseURL string
	keyring Keyring
}

// New builds a Resolver. ttl is spec.md §6's CACHE_TTL_SECONDS
// (default 600); baseURL is the externally-visible root used to render
// absolute `link`/`thumbnail`/`snapshot` URLs; keyring may be nil.
func New(s *store.Store, ttl time.Duration, baseURL string, keyring Keyring) *Resolver {
	return &Resolver{store: s, cache: newTTLCache(ttl), baseURL: baseURL, keyring: keyring}
}

// Normalize validates and completes raw query parameters per spec.md
// §4.3's normalization rules, deriving `major` from the firmware table
// when the caller omits it and forcing beta off for DSM 7+ (build >=
// 40000).
func (r *Resolver) Normalize(ctx context.Context, archRaw, buildRaw, majorRaw, language string, betaRequested bool) (Query, error) {
	if archRaw == "" || buildRaw == "" || language == "" {
		return Query{}, newErr(CodeMissingField, "arch, build and language are required")
	}

	build, err := strconv.Atoi(buildRaw)
	if err != nil {
		return Query{}, newErr(CodeInvalidBuild, "%s", buildRaw)
	}

	arch := model.NormalizeArch(archRaw)
	if _, err := r.store.FindArchitecture(ctx, r.store.Pool, arch); err != nil {
		if err == store.ErrNotFound {
			return Query{}, newErr(CodeUnknownArch, "%s", archRaw)
		}
		return Query{}, err
	}
	if _, err := r.store.FindLanguage(ctx, r.store.Pool, language); err != nil {
		if err == store.ErrNotFound {
			return Query{}, newErr(CodeUnknownLang, "%s", language)
		}
		return Query{}, err
	}

	beta := betaRequested && build < 40000

	major := 0
	if majorRaw != "" {
		major, err = strconv.Atoi(majorRaw)
		if err != nil {
			return Query{}, newErr(CodeInvalidBuild, "invalid major %s", majorRaw)
		}
	} else {
		firmware, err := r.store.LatestDSMFirmwareAtOrBelow(ctx, r.store.Pool, build)
		if err != nil {
			if err == store.ErrNotFound {
				return Query{}, newErr(CodeInvalidBuild, "no firmware at or below %d", build)
			}
			return Query{}, err
		}
		major, _ = strconv.Atoi(strings.SplitN(firmware.Version, ".", 2)[0])
	}

	return Query{Arch: arch, Build: build, Major: major, Language: language, Beta: beta}, nil
}

// Resolve runs (or serves from cache) the three-stage catalog CTE and
// renders each chosen build into an Entry (spec.md §4.3).
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	result, _, err := r.resolve(ctx, q)
	return result, err
}

// ResolveCached is Resolve plus whether the result was served from the
// TTL cache, for callers that want to observe cache effectiveness
// (internal/api's catalog_queries_total metric).
func (r *Resolver) ResolveCached(ctx context.Context, q Query) (Result, bool, error) {
	return r.resolve(ctx, q)
}

func (r *Resolver) resolve(ctx context.Context, q Query) (Result, bool, error) {
	key := cacheKey{arch: q.Arch, build: q.Build, major: q.Major, language: q.Language, beta: q.Beta}
	if cached, ok := r.cache.get(key); ok {
		return cached.(Result), true, nil
	}

	rows, err := r.store.ResolveCatalog(ctx, r.store.Pool, q.Arch, q.Build, q.Major, q.Beta)
	if err != nil {
		return Result{}, false, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := r.render(ctx, row, q.Language)
		if err != nil {
			return Result{}, false, err
		}
		entries = append(entries, entry)
	}

	result := Result{Packages: entries, Envelope: q.Build >= 5004}
	if result.Envelope {
		result.Keyrings = r.exportKeyrings(ctx)
	}

	r.cache.set(key, result)
	return result, false, nil
}

func (r *Resolver) render(ctx context.Context, row store.CatalogRow, language string) (Entry, error) {
	manifest, err := r.store.FindBuildManifest(ctx, r.store.Pool, row.Build.ID)
	if err != nil && err != store.ErrNotFound {
		return Entry{}, err
	}
	if err == store.ErrNotFound {
		manifest = nil
	}

	screenshots, err := r.store.PackageScreenshots(ctx, r.store.Pool, row.Version.PackageID)
	if err != nil {
		return Entry{}, err
	}
	screenshotURLs := make([]string, 0, len(screenshots))
	for _, path := range screenshots {
		screenshotURLs = append(screenshotURLs, dataURL(r.baseURL, path))
	}

	total, recent, err := r.store.PackageDownloadCounts(ctx, r.store.Pool, row.Version.PackageID)
	if err != nil {
		return Entry{}, err
	}

	return buildEntry(row, renderParams{
		baseURL:             r.baseURL,
		language:            language,
		screenshots:         screenshotURLs,
		downloadCount:       total,
		recentDownloadCount: recent,
		manifest:            manifest,
	}), nil
}

func (r *Resolver) exportKeyrings(ctx context.Context) []string {
	if r.keyring == nil {
		return []string{}
	}
	key, err := r.keyring.ExportKeyring(ctx)
	if err != nil || key == "" {
		return []string{}
	}
	return []string{key}
}

// Package metrics exposes the Prometheus counters and histograms the
// HTTP surface records against: upload outcomes, catalog query latency,
// and download redirects. Nothing in spec.md names these as a
// requirement, but every HTTP path the repository serves is otherwise
// unobserved, which the rest of this codebase's ambient stack (structured
// logging, typed errors) does not leave true anywhere else.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// UploadsTotal counts POST /api/packages outcomes by HTTP status.
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spkrepo",
		Name:      "uploads_total",
		Help:      "SPK uploads processed, by resulting HTTP status.",
	}, []string{"status"})

	// UploadDuration times one POST /api/packages request in its handler,
	// from the authorization check through reconcile and signing.
	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spkrepo",
		Name:      "upload_duration_seconds",
		Help:      "Time spent reconciling one SPK upload.",
		Buckets:   prometheus.DefBuckets,
	})

	// CatalogQueriesTotal counts /nas/ catalog queries by cache outcome.
	CatalogQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spkrepo",
		Name:      "catalog_queries_total",
		Help:      "Catalog queries served, by cache hit or miss.",
	}, []string{"cache"})

	// CatalogQueryDuration times Resolver.Resolve, cache hits included.
	CatalogQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spkrepo",
		Name:      "catalog_query_duration_seconds",
		Help:      "Time spent resolving one catalog query.",
		Buckets:   prometheus.DefBuckets,
	})

	// DownloadsTotal counts recorded downloads by architecture code.
	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spkrepo",
		Name:      "downloads_total",
		Help:      "Recorded package downloads, by architecture code.",
	}, []string{"architecture"})
)

// MustRegister registers every collector in this package against reg.
// Callers pass a fresh *prometheus.Registry rather than the global
// DefaultRegisterer so cmd/spkrepod can stand up more than one server in
// a test process without a duplicate-registration panic.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(UploadsTotal, UploadDuration, CatalogQueriesTotal, CatalogQueryDuration, DownloadsTotal)
}

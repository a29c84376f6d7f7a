// Package metadata resolves off-chain agent metadata from registration URIs.
//
// Supported schemes: inline base64 data URIs, ipfs:// (rewritten to an
// HTTP gateway), and plain http(s). Resolution never fails the caller:
// timeouts, non-2xx responses, and parse errors all degrade to "no
// metadata" so a broken URI cannot block a registration.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/agentscan/internal/metrics"
)

// DefaultTimeout bounds every metadata fetch.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a metadata document we are willing to read.
const maxBodySize = 1 << 20 // 1 MiB

// Metadata is the fixed output shape extracted from an agent's
// registration document. Empty strings mean absent.
type Metadata struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Services    json.RawMessage `json:"services,omitempty"`

	// x402 payment acceptance, extracted from either a nested payments
	// list or a flat boolean flag.
	AcceptsPayments bool   `json:"acceptsPayments"`
	Payee           string `json:"payee,omitempty"`
	Network         string `json:"network,omitempty"`
}

// Resolver fetches and parses agent metadata documents.
type Resolver struct {
	client  *http.Client
	gateway string
	logger  *slog.Logger
}

// NewResolver creates a resolver. gateway is the HTTP base for
// content-addressed URIs (e.g. "https://ipfs.io/ipfs/"); timeout <= 0
// uses DefaultTimeout.
func NewResolver(gateway string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		gateway: gateway,
		logger:  logger,
	}
}

// Resolve fetches the document behind uri and extracts the fixed shape.
// Returns nil (never an error) when the URI is unsupported or the fetch
// or parse fails.
func (r *Resolver) Resolve(ctx context.Context, uri string) *Metadata {
	switch {
	case strings.HasPrefix(uri, "data:"):
		return r.resolveInline(uri)

	case strings.HasPrefix(uri, "ipfs://"):
		cid := strings.TrimPrefix(uri, "ipfs://")
		return r.fetch(ctx, r.gateway+cid)

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return r.fetch(ctx, uri)

	default:
		r.logger.Warn("unsupported metadata uri", "uri", uri)
		metrics.MetadataFetchTotal.WithLabelValues("invalid").Inc()
		return nil
	}
}

// resolveInline decodes a base64 data URI carrying JSON.
func (r *Resolver) resolveInline(uri string) *Metadata {
	idx := strings.Index(uri, ";base64,")
	if idx < 0 {
		metrics.MetadataFetchTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(uri[idx+len(";base64,"):])
	if err != nil {
		r.logger.Warn("invalid inline metadata", "error", err)
		metrics.MetadataFetchTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	md := parse(decoded)
	if md == nil {
		metrics.MetadataFetchTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	metrics.MetadataFetchTotal.WithLabelValues("inline").Inc()
	return md
}

func (r *Resolver) fetch(ctx context.Context, url string) *Metadata {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.MetadataFetchTotal.WithLabelValues("error").Inc()
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("metadata fetch failed", "url", url, "error", err)
		metrics.MetadataFetchTotal.WithLabelValues("error").Inc()
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("metadata fetch non-success", "url", url, "status", resp.StatusCode)
		metrics.MetadataFetchTotal.WithLabelValues("error").Inc()
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.MetadataFetchTotal.WithLabelValues("error").Inc()
		return nil
	}

	md := parse(body)
	if md == nil {
		r.logger.Warn("metadata parse failed", "url", url)
		metrics.MetadataFetchTotal.WithLabelValues("error").Inc()
		return nil
	}
	metrics.MetadataFetchTotal.WithLabelValues("ok").Inc()
	return md
}

// rawDocument mirrors the loosely-shaped external JSON. Unknown fields
// are ignored; missing fields stay zero.
type rawDocument struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Services    json.RawMessage `json:"services"`
	X402        bool            `json:"x402"`
	Payments    []rawPayment    `json:"payments"`
}

type rawPayment struct {
	Method  string `json:"method"`
	Payee   string `json:"payee"`
	PayTo   string `json:"payTo"`
	Network string `json:"network"`
}

func parse(data []byte) *Metadata {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	md := &Metadata{
		Name:        doc.Name,
		Description: doc.Description,
		Image:       doc.Image,
		Services:    doc.Services,
	}

	// Nested payments list wins over the flat flag: the first entry
	// whose method mentions x402 declares acceptance and the payee.
	for _, p := range doc.Payments {
		if strings.Contains(strings.ToLower(p.Method), "x402") {
			md.AcceptsPayments = true
			md.Payee = p.Payee
			if md.Payee == "" {
				md.Payee = p.PayTo
			}
			md.Network = p.Network
			break
		}
	}
	if !md.AcceptsPayments && doc.X402 {
		md.AcceptsPayments = true
	}

	return md
}

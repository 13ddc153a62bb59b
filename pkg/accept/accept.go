package accept

import (
	"net/http"
	"regexp"
	"strings"
)

// Descriptor is the negotiated (vendor, version, format) tuple of one request
type Descriptor struct {
	Vendor  string
	Version string
	Format  string
	// Matched is true when a media range of the configured vendor was found.
	Matched bool
}

// MediaType renders the descriptor as a vendor media type, e.g.
// "application/vnd.myapp.v2+json"
func (d Descriptor) MediaType() string {
	var b strings.Builder
	b.WriteString("application/vnd.")
	b.WriteString(d.Vendor)
	if d.Version != "" {
		b.WriteByte('.')
		b.WriteString(d.Version)
	}
	if d.Format != "" {
		b.WriteByte('+')
		b.WriteString(d.Format)
	}
	return b.String()
}

// Parser parses Accept headers of the form
// application/vnd.<vendor>.<v\d+>+<format>. It never fails: anything that
// cannot be read falls back to the defaults.
type Parser struct {
	Vendor         string
	DefaultVersion string
	DefaultFormat  string

	pattern *regexp.Regexp
}

// NewParser returns a parser for the given vendor. An empty vendor accepts
// any vendor token without dots.
func NewParser(vendor, defaultVersion, defaultFormat string) *Parser {
	vendorExpr := `[a-z0-9_-]+`
	if vendor != "" {
		vendorExpr = regexp.QuoteMeta(vendor)
	}
	return &Parser{
		Vendor:         vendor,
		DefaultVersion: defaultVersion,
		DefaultFormat:  defaultFormat,
		pattern:        regexp.MustCompile(`(?i)^application/vnd\.(` + vendorExpr + `)(?:\.(v\d+))?(?:\+([a-z0-9.-]+))?$`),
	}
}

// ParseRequest parses the Accept header of r
func (p *Parser) ParseRequest(r *http.Request) Descriptor {
	return p.Parse(r.Header.Get("Accept"))
}

// Parse returns the descriptor of the first media range matching the vendor
// grammar. Missing pieces take the configured defaults.
func (p *Parser) Parse(header string) Descriptor {
	d := Descriptor{
		Vendor:  p.Vendor,
		Version: p.DefaultVersion,
		Format:  p.DefaultFormat,
	}

	for _, mediaRange := range strings.Split(header, ",") {
		mediaType, _, _ := strings.Cut(mediaRange, ";")
		m := p.pattern.FindStringSubmatch(strings.TrimSpace(mediaType))
		if m == nil {
			continue
		}

		d.Matched = true
		d.Vendor = strings.ToLower(m[1])
		if m[2] != "" {
			d.Version = strings.ToLower(m[2])
		}
		if m[3] != "" {
			d.Format = strings.ToLower(m[3])
		}
		return d
	}

	return d
}

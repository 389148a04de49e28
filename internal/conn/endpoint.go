package conn

// Source records where the active endpoint came from. A flag-supplied
// endpoint is pinned for the whole session; only a stored one may be
// abandoned by the fallback policy.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceStored  Source = "stored"
	SourceDefault Source = "default"
)

// Endpoint is the WebSocket target plus its provenance.
type Endpoint struct {
	URL    string
	Source Source
}

// IsDefault reports whether the endpoint is the configured default.
func (e Endpoint) IsDefault(defaultURL string) bool { return e.URL == defaultURL }

// ResolveEndpoint picks the active endpoint: command-line flag beats the
// stored preference, which beats the configured default.
func ResolveEndpoint(flagURL, storedURL, defaultURL string) Endpoint {
	switch {
	case flagURL != "":
		return Endpoint{URL: flagURL, Source: SourceFlag}
	case storedURL != "":
		return Endpoint{URL: storedURL, Source: SourceStored}
	}
	return Endpoint{URL: defaultURL, Source: SourceDefault}
}

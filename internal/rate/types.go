// Package rate keeps outbound provider traffic inside published request
// budgets and folds identical requests into short-lived cached responses.
package rate

import "time"

// Window is one of a provider's budget windows.
type Window int

const (
	TenSeconds Window = iota
	Hour
)

func (w Window) String() string {
	switch w {
	case TenSeconds:
		return "10s"
	case Hour:
		return "hour"
	default:
		return "unknown"
	}
}

func (w Window) duration() time.Duration {
	if w == Hour {
		return time.Hour
	}
	return 10 * time.Second
}

type budget struct {
	window Window
	max    int
}

// Declaration is a provider's budget table plus response-cache TTL,
// assembled with a small builder:
//
//	rate.Provider("netatmo").MaxRequestsPer(rate.TenSeconds, 50).CacheFor(10 * time.Second)
type Declaration struct {
	provider string
	budgets  []budget
	cacheTTL time.Duration
}

func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) MaxRequestsPer(w Window, max int) Declaration {
	d.budgets = append(d.budgets, budget{window: w, max: max})
	return d
}

func (d Declaration) CacheFor(ttl time.Duration) Declaration {
	d.cacheTTL = ttl
	return d
}

func (d Declaration) ProviderName() string { return d.provider }

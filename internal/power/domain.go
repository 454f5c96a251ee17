// Package power holds the closed set of monitored power domains and the
// readings sampled from them.
package power

import (
	"errors"
	"strings"
)

// Domain names one monitored electrical rail.
type Domain string

const (
	VBAT Domain = "VBAT" // battery rail
	USB  Domain = "USB"  // USB supply rail
)

// ErrUnknownDomain is returned for names outside the built-in domain set.
var ErrUnknownDomain = errors.New("unknown power domain")

var domains = []Domain{VBAT, USB}

// Domains returns every built-in power domain in a stable order.
func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains)
	return out
}

// ParseDomain maps a name to its Domain, ignoring case.
func ParseDomain(name string) (Domain, error) {
	for _, d := range domains {
		if strings.EqualFold(string(d), name) {
			return d, nil
		}
	}
	return "", ErrUnknownDomain
}

// Valid reports whether d is one of the built-in domains (exact match).
func (d Domain) Valid() bool {
	for _, known := range domains {
		if d == known {
			return true
		}
	}
	return false
}

func (d Domain) String() string { return string(d) }

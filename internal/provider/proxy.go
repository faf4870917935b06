package provider

import (
	"fmt"
	"math/rand"
)

// ProxyPolicy picks a proxy for a given attempt. tried holds the proxies
// already attempted for this video, in order.
type ProxyPolicy interface {
	Select(attempt int, tried []string) string
}

// ProxyPolicyFunc adapts a function to the ProxyPolicy interface
type ProxyPolicyFunc func(attempt int, tried []string) string

// Select implements ProxyPolicy
func (f ProxyPolicyFunc) Select(attempt int, tried []string) string {
	return f(attempt, tried)
}

var proxyPolicies = map[string]ProxyPolicy{}

// RegisterProxyPolicy makes a named policy available for selection through
// configuration. Registration happens at init time; unknown names are
// rejected at startup by LookupProxyPolicy.
func RegisterProxyPolicy(name string, policy ProxyPolicy) {
	proxyPolicies[name] = policy
}

// LookupProxyPolicy resolves a configured policy name. The empty name
// returns the built-in attempt-indexed policy over the given proxy list.
func LookupProxyPolicy(name string, proxies []string, fallback string) (ProxyPolicy, error) {
	if name == "" {
		return NewAttemptIndexedPolicy(proxies, fallback), nil
	}
	policy, ok := proxyPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown proxy policy %q", name)
	}
	return policy, nil
}

// attemptIndexedPolicy is the default selection: attempts 0 and 1 pick from
// the configured list excluding proxies already tried, attempt 2 and later
// fall back to the default proxy.
type attemptIndexedPolicy struct {
	proxies  []string
	fallback string
}

// NewAttemptIndexedPolicy builds the default proxy policy
func NewAttemptIndexedPolicy(proxies []string, fallback string) ProxyPolicy {
	return &attemptIndexedPolicy{proxies: proxies, fallback: fallback}
}

func (p *attemptIndexedPolicy) Select(attempt int, tried []string) string {
	if attempt >= 2 {
		return p.fallback
	}

	seen := make(map[string]bool, len(tried))
	for _, t := range tried {
		seen[t] = true
	}

	var remaining []string
	for _, proxy := range p.proxies {
		if !seen[proxy] {
			remaining = append(remaining, proxy)
		}
	}
	if len(remaining) == 0 {
		return p.fallback
	}
	return remaining[rand.Intn(len(remaining))]
}

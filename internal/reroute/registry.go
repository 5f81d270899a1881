package reroute

import (
	"fmt"

	"firestige.xyz/frr/internal/core"
)

// Registered policy names.
const (
	NameLFA         = "lfa"
	NameRerouteHead = "reroute-head"
	NameRerouteFlow = "reroute-flow"
	NameSafeTail    = "safe-tail"
	NameNone        = "none"
)

// Options configures a policy created through New.
type Options struct {
	// MaxDiverted bounds how many flows one selection round of
	// reroute-flow diverts. Values below one mean one.
	MaxDiverted int

	// Hook, when set, observes every diversion attempt.
	Hook func(Event)
}

type entry struct {
	name        string
	description string
	build       func(Options) Policy
}

var registry = []entry{
	{NameLFA, "reroute every new packet while the primary queue is congested", func(o Options) Policy { return NewAlwaysRerouteNew(o) }},
	{NameRerouteHead, "reroute the head-of-line packet and enqueue the new one", func(o Options) Policy { return NewRerouteHead(o) }},
	{NameRerouteFlow, "reroute whole flows, heaviest first, once congestion appears", func(o Options) Policy { return NewPerFlowReroute(o) }},
	{NameSafeTail, "like lfa, but only while the alternate queue is not congested", func(o Options) Policy { return NewSafeRerouteTail(o) }},
	{NameNone, "never reroute; congestion leads to tail drop", func(o Options) Policy { return NewPassthrough(o) }},
}

// New creates the policy registered under name.
func New(name string, opts Options) (Policy, error) {
	for _, e := range registry {
		if e.name == name {
			return e.build(opts), nil
		}
	}
	return nil, fmt.Errorf("policy %q: %w", name, core.ErrUnknownPolicy)
}

// Names returns the registered policy names.
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// Describe returns a one-line description of the named policy.
func Describe(name string) (string, bool) {
	for _, e := range registry {
		if e.name == name {
			return e.description, true
		}
	}
	return "", false
}

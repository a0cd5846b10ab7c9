// Package registry implements the service-registry client (spec §6): an
// external collaborator the core queries to enumerate live executors
// (reading the "executor" formation) and, during bootstrap, to find the
// instance chosen to host the coordination store. The core never serves
// DNS itself (spec §1's non-goal on inter-service DNS resolution) — it is
// strictly a client, adapted from the teacher's pkg/dns/resolver.go SRV
// lookup logic but pointed outward instead of implementing a server.
package registry

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Entry is one result of a formation query: a named endpoint and its
// instance identity (spec §6: "query_formation(name) yielding (name,
// {instance, ...}) pairs").
type Entry struct {
	Name     string
	Instance string
	Host     string
	Port     uint16
}

// Client exposes the one registry operation the core needs.
type Client interface {
	QueryFormation(name string) ([]Entry, error)
}

// dnsClient is a registry Client backed by SRV lookups against the
// configured nameservers, grounded on the teacher's miekg/dns usage in
// pkg/dns/resolver.go — there used server-side to answer queries, here
// used client-side to issue them.
type dnsClient struct {
	nameservers []string
	domain      string
	client      *dns.Client
}

// New constructs a Client that resolves formation queries as SRV records
// under domain, against the given nameserver addresses (host:port),
// typically sourced from the GILLIAM_SERVICE_REGISTRY environment
// variable (spec §6).
func New(nameservers []string, domain string) Client {
	return &dnsClient{
		nameservers: nameservers,
		domain:      domain,
		client:      new(dns.Client),
	}
}

// QueryFormation resolves "_<name>._tcp.<domain>." as a SRV query and
// returns one Entry per answer record, the target hostname doubling as
// both the entry's Name and Instance identity since the source's registry
// has no richer per-entry metadata to surface.
func (c *dnsClient) QueryFormation(name string) ([]Entry, error) {
	if len(c.nameservers) == 0 {
		return nil, fmt.Errorf("registry: no nameservers configured")
	}

	query := fmt.Sprintf("_%s._tcp.%s.", name, c.domain)
	m := new(dns.Msg)
	m.SetQuestion(query, dns.TypeSRV)

	var lastErr error
	for _, ns := range c.nameservers {
		resp, _, err := c.client.Exchange(m, ns)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("registry: %s answered rcode %d for %s", ns, resp.Rcode, query)
			continue
		}
		return entriesFromAnswers(resp.Answer), nil
	}
	return nil, fmt.Errorf("registry: all nameservers failed for %s: %w", query, lastErr)
}

func entriesFromAnswers(answers []dns.RR) []Entry {
	var out []Entry
	for _, rr := range answers {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(srv.Target, ".")
		out = append(out, Entry{
			Name:     host,
			Instance: host,
			Host:     host,
			Port:     srv.Port,
		})
	}
	return out
}

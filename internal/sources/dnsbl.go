package sources

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"alertador/internal/domain"
	"alertador/internal/urlnorm"
)

// DNSBL checks the registrable domain against a DNS blocklist zone
// (Spamhaus DBL style): an A answer in 127.0.0.0/8 means listed, NXDOMAIN
// means not listed. The zone is configurable; lookups use the system
// resolver from /etc/resolv.conf.
type DNSBL struct {
	zone       string
	client     *dns.Client
	nameserver string
}

func NewDNSBL(zone string, timeout time.Duration) *DNSBL {
	s := &DNSBL{
		zone: strings.Trim(zone, "."),
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
	}
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		s.nameserver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return s
}

func (s *DNSBL) Name() string { return "dnsbl" }

func (s *DNSBL) Query(ctx context.Context, n urlnorm.Normalized) (Result, error) {
	if s.nameserver == "" {
		return Result{}, fmt.Errorf("%w: dnsbl: no nameserver configured", domain.ErrSourceUnavailable)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(n.Domain+"."+s.zone), dns.TypeA)

	resp, _, err := s.client.ExchangeContext(ctx, msg, s.nameserver)
	if err != nil {
		return Result{}, fmt.Errorf("%w: dnsbl: %v", domain.ErrSourceUnavailable, err)
	}
	switch resp.Rcode {
	case dns.RcodeNameError:
		return Result{Label: domain.LabelClean, Detail: "not listed"}, nil
	case dns.RcodeSuccess:
		for _, ans := range resp.Answer {
			if a, ok := ans.(*dns.A); ok {
				if ip4 := a.A.To4(); ip4 != nil && ip4[0] == 127 {
					return Result{Label: domain.LabelMalicious, Detail: "listed as " + a.A.String()}, nil
				}
			}
		}
		return Result{Label: domain.LabelUnknown, Detail: "no listing answer"}, nil
	default:
		return Result{}, fmt.Errorf("%w: dnsbl: rcode %s", domain.ErrSourceUnavailable, dns.RcodeToString[resp.Rcode])
	}
}

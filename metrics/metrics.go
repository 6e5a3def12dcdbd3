// Package metrics exposes Prometheus counters and gauges for the three core
// forwarding-plane subsystems, wired in as read-only observability without
// altering their behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrouter_frames_forwarded_total", Help: "Total Ethernet frames forwarded out an egress interface.",
	}, []string{"egress_interface"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrouter_frames_dropped_total", Help: "Total frames dropped, by reason.",
	}, []string{"reason"})

	ICMPRepliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrouter_icmp_replies_sent_total", Help: "Total ICMP messages originated by the router, by type.",
	}, []string{"icmp_type"})

	ARPRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrouter_arp_requests_sent_total", Help: "Total ARP request broadcasts sent, including retries.",
	})
	ARPRequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrouter_arp_requests_expired_total", Help: "Total ARP requests abandoned after exhausting their retry budget.",
	})
	ARPCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrouter_arp_cache_entries", Help: "Current number of resolved entries held in the ARP cache.",
	})

	NATMappingsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vrouter_nat_mappings_active", Help: "Current number of active NAT mappings, by protocol type.",
	}, []string{"nat_type"})
	NATMappingsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrouter_nat_mappings_expired_total", Help: "Total NAT mappings evicted for exceeding their idle timeout, by protocol type.",
	}, []string{"nat_type"})
	NATMappingsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrouter_nat_aux_exhausted_total", Help: "Total times NAT mapping creation failed because the aux window was exhausted.",
	})
)

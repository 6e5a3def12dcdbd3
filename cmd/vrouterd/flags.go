package main

import (
	flag "github.com/spf13/pflag"
)

type rootFlags struct {
	configPath  string
	logLevel    string
	metricsAddr string
	driver      string
}

func registerFlags(fs *flag.FlagSet, f *rootFlags) {
	fs.StringVar(&f.configPath, "config", "/etc/vrouterd/config.yaml", "path to the router's YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.metricsAddr, "metrics-addr", ":9100", "address to serve Prometheus metrics on")
	fs.StringVar(&f.driver, "driver", "tap", "link-layer transport: tap (per-interface TAP devices) or pcap (live capture on existing NICs via libpcap)")
}

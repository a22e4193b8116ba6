// Package mdnspublish advertises the host on the local network as an
// _nvstream._tcp service so Moonlight clients can discover it without
// manual address entry.
package mdnspublish

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/mdns"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("mdns")

const serviceType = "_nvstream._tcp"

// Publisher owns the mDNS responder for the lifetime of the process.
type Publisher struct {
	server *mdns.Server
}

// Publish starts answering mDNS queries for instanceName on the HTTP port.
// The responder keeps running until Shutdown.
func Publish(instanceName string, port int) (*Publisher, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = instanceName
	}

	service, err := mdns.NewMDNSService(instanceName, serviceType, "", "", port, nil, []string{""})
	if err != nil {
		return nil, fmt.Errorf("mdns: create service record: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns: start responder: %w", err)
	}

	log.Info("publishing mdns service", "instance", instanceName, "type", serviceType, "port", port, "hostname", hostname)
	return &Publisher{server: server}, nil
}

// Run blocks until ctx is cancelled, then shuts the responder down. Using
// it as a worker keeps the publisher's lifetime tied to the application's
// shutdown manager.
func (p *Publisher) Run(ctx context.Context) error {
	<-ctx.Done()
	return p.Shutdown()
}

// Shutdown stops answering queries.
func (p *Publisher) Shutdown() error {
	log.Info("stopping mdns responder")
	return p.server.Shutdown()
}

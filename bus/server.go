package bus

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs the broker in-process, so a single field unit does not
// need an external NATS daemon.
type EmbeddedServer struct {
	ns *server.Server
}

// StartEmbedded boots a broker listening on the host/port of busURL and
// waits until it accepts connections.
func StartEmbedded(busURL string) (*EmbeddedServer, error) {
	host, port := "0.0.0.0", 4222
	if u, err := url.Parse(busURL); err == nil && u.Host != "" {
		if h := u.Hostname(); h != "" {
			host = h
		}
		if p := u.Port(); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				port = n
				if n == 0 {
					port = server.RANDOM_PORT
				}
			}
		}
	}

	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("nats-server init: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats-server not ready")
	}

	return &EmbeddedServer{ns: ns}, nil
}

// ClientURL returns the URL local clients should dial.
func (s *EmbeddedServer) ClientURL() string {
	return s.ns.ClientURL()
}

// Shutdown stops the broker and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

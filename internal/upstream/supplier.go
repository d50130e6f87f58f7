package upstream

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// HostSupplier hands out replay backend base URLs in round-robin order
type HostSupplier interface {
	Get() string
	// After returns the host that follows failed in the list, never failed
	// itself unless it is the only host. The round-robin position is kept.
	After(failed string) string
	Len() int
}

type hostSupplier struct {
	hosts   []string
	current int
	mutex   sync.Mutex
}

// NewHostSupplier probes primary and mirrors in parallel and keeps the ones
// that answer. The primary is kept when nothing answers.
func NewHostSupplier(ctx context.Context, primary string, mirrors []string) HostSupplier {
	candidates := make([]string, 0, len(mirrors)+1)
	candidates = append(candidates, strings.TrimRight(primary, "/"))
	for _, mirror := range mirrors {
		if mirror = strings.TrimRight(mirror, "/"); mirror != "" && mirror != candidates[0] {
			candidates = append(candidates, mirror)
		}
	}

	if len(candidates) == 1 {
		return &hostSupplier{hosts: candidates}
	}

	log.Infof("🔄 Probing %d replay API hosts in parallel...", len(candidates))

	alive := make([]bool, len(candidates))
	semaphore := make(chan struct{}, 10)

	var wg sync.WaitGroup
	for i, host := range candidates {
		wg.Add(1)

		go func(index int, host string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if isHostAlive(ctx, host) {
				alive[index] = true
				log.Infof("✅ Host %s is reachable", host)
			} else {
				log.Infof("❌ Host %s is not reachable, skipping", host)
			}
		}(i, host)
	}
	wg.Wait()

	hosts := make([]string, 0, len(candidates))
	for i, host := range candidates {
		if alive[i] {
			hosts = append(hosts, host)
		}
	}

	if len(hosts) == 0 {
		log.Warnf("⚠️ No replay API host answered, falling back to %s", candidates[0])
		hosts = candidates[:1]
	}

	log.Infof("✅ HostSupplier initialized with %d hosts out of %d probed", len(hosts), len(candidates))

	return &hostSupplier{hosts: hosts}
}

// Get returns the next host in round-robin fashion
func (h *hostSupplier) Get() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.hosts) == 0 {
		return ""
	}

	host := h.hosts[h.current]
	h.current = (h.current + 1) % len(h.hosts)

	return host
}

func (h *hostSupplier) After(failed string) string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.hosts) == 0 {
		return ""
	}

	for i, host := range h.hosts {
		if host == failed {
			return h.hosts[(i+1)%len(h.hosts)]
		}
	}

	return h.hosts[h.current]
}

func (h *hostSupplier) Len() int {
	return len(h.hosts)
}

// isHostAlive treats any answer below 500 as alive; the probe is unauthenticated.
func isHostAlive(ctx context.Context, host string) bool {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0)

	resp, err := client.R().
		SetContext(ctx).
		Get(host + "/api/0/")

	if err != nil {
		log.Debugf("Host probe failed for %s: %v", host, err)
		return false
	}

	if resp.StatusCode() >= 500 {
		log.Debugf("Host probe failed for %s with status: %s", host, resp.Status())
		return false
	}

	return true
}

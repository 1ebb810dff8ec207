package config

import (
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool

	// dockerProbe is swapped in tests.
	dockerProbe = func() bool {
		_, err := os.Stat("/.dockerenv")
		return err == nil
	}
)

// IsRunningInDocker reports whether the process runs inside a Docker container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		isDockerResult = dockerProbe()
	})
	return isDockerResult
}

// ResolveEmulatorHost rewrites a loopback storage emulator address to the Docker
// host gateway when running inside a container, so a fake-gcs server started on
// the developer machine stays reachable. Accepts "host", "host:port" or a URL.
func ResolveEmulatorHost(addr string) string {
	return resolveLoopback(addr, IsRunningInDocker())
}

func resolveLoopback(addr string, inDocker bool) string {
	if !inDocker || addr == "" {
		return addr
	}

	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return addr
		}
		u.Host = resolveLoopback(u.Host, inDocker)
		return u.String()
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}
	if host != "localhost" && host != "127.0.0.1" {
		return addr
	}
	if port == "" {
		return dockerHostGateway
	}
	return net.JoinHostPort(dockerHostGateway, port)
}

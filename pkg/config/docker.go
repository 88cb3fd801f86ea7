package config

import (
	"net"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal when running in Docker,
// so PostgreSQL and MinIO on the host machine stay reachable. Other hosts are unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if isLoopback(host) {
		return "host.docker.internal"
	}
	return host
}

// ResolveEndpointForDocker applies ResolveHostForDocker to a host:port endpoint.
func ResolveEndpointForDocker(endpoint string) string {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return ResolveHostForDocker(endpoint)
	}
	return net.JoinHostPort(ResolveHostForDocker(host), port)
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

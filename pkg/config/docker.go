package config

import (
	"os"
	"sync"
)

// dockerSentinel is present in every container the Docker runtime starts.
const dockerSentinel = "/.dockerenv"

var inDocker = sync.OnceValue(func() bool {
	_, err := os.Stat(dockerSentinel)
	return err == nil
})

// IsRunningInDocker reports whether the engine runs inside a Docker
// container. The check runs once and is cached.
func IsRunningInDocker() bool {
	return inDocker()
}

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal when
// running inside a container, so a MongoDB or Redis instance on the host
// machine stays reachable with the same config that works outside Docker.
// Every other host passes through unchanged.
func ResolveHostForDocker(host string) string {
	if host != "localhost" && host != "127.0.0.1" {
		return host
	}
	if !IsRunningInDocker() {
		return host
	}
	return "host.docker.internal"
}

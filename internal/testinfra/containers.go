//go:build integration_test

// Package testinfra starts throwaway backing services for integration tests.
package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startupTimeout leaves room for image pulls on a cold machine.
const startupTimeout = 3 * time.Minute

// Endpoint is the host and mapped port of a started container.
type Endpoint struct {
	Host string
	Port int
}

type containerRunner struct {
	image       string
	servicePort nat.Port
	env         map[string]string
	cmd         []string
}

func (o containerRunner) run(ctx context.Context) (testcontainers.Container, Endpoint, error) {
	req := testcontainers.ContainerRequest{
		Image:        o.image,
		ExposedPorts: []string{string(o.servicePort)},
		Env:          o.env,
		Cmd:          o.cmd,
		WaitingFor:   wait.ForListeningPort(o.servicePort).WithStartupTimeout(startupTimeout),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, Endpoint{}, fmt.Errorf("failed to start %s: %w", o.image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return c, Endpoint{}, fmt.Errorf("failed to get host: %w", err)
	}
	mp, err := c.MappedPort(ctx, o.servicePort)
	if err != nil {
		return c, Endpoint{}, fmt.Errorf("failed to get port: %w", err)
	}

	return c, Endpoint{Host: host, Port: mp.Int()}, nil
}

// Postgres starts a PostgreSQL 16 container with the given credentials.
func Postgres(ctx context.Context, db, user, pass string) (testcontainers.Container, Endpoint, error) {
	return containerRunner{
		image:       "postgres:16-alpine",
		servicePort: "5432/tcp",
		env: map[string]string{
			"POSTGRES_DB":       db,
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": pass,
		},
	}.run(ctx)
}

// Redis starts a Redis 7 container.
func Redis(ctx context.Context) (testcontainers.Container, Endpoint, error) {
	return containerRunner{
		image:       "redis:7-alpine",
		servicePort: "6379/tcp",
	}.run(ctx)
}

// Elasticsearch starts a single-node Elasticsearch 8 container with security disabled.
func Elasticsearch(ctx context.Context) (testcontainers.Container, Endpoint, error) {
	return containerRunner{
		image:       "docker.elastic.co/elasticsearch/elasticsearch:8.15.0",
		servicePort: "9200/tcp",
		env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		},
	}.run(ctx)
}

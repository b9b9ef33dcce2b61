package testenv

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Services holds the containers an integration test runs against.
type Services struct {
	ctx context.Context

	postgres testcontainers.Container
	redis    testcontainers.Container

	PostgresURL string
	RedisHost   string
	RedisPort   int
}

func NewServices(ctx context.Context) *Services {
	return &Services{ctx: ctx}
}

// StartPostgres starts PostgreSQL container
func (s *Services) StartPostgres() error {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "clover",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}
	s.postgres = container

	host, err := container.Host(s.ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(s.ctx, "5432")
	if err != nil {
		return err
	}

	s.PostgresURL = fmt.Sprintf("postgres://user:password@%s:%s/clover?sslmode=disable", host, port.Port())
	return nil
}

// StartRedis starts Redis container
func (s *Services) StartRedis() error {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}
	s.redis = container

	host, err := container.Host(s.ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(s.ctx, "6379")
	if err != nil {
		return err
	}

	s.RedisHost = host
	s.RedisPort = port.Int()
	return nil
}

// Stop terminates every started container.
func (s *Services) Stop() error {
	var firstErr error
	for _, c := range []testcontainers.Container{s.redis, s.postgres} {
		if c == nil {
			continue
		}
		if err := c.Terminate(s.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

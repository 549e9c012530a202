package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// websearch_to_tsquery and generated columns need at least postgres 12
const defaultImage = "postgres:16-alpine"

type (
	// PostgresContainer is a started postgres container plus the credentials
	// it was initialized with.
	PostgresContainer struct {
		testcontainers.Container
		user     string
		password string
		dbName   string
		port     nat.Port
	}
	PostgresContainerOption func(req *testcontainers.ContainerRequest)
)

func WithImage(image string) PostgresContainerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.Image = image
	}
}

func WithName(containerName string) PostgresContainerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.Name = containerName
	}
}

func WithStartupTimeout(d time.Duration) PostgresContainerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.WaitingFor = wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(d)
	}
}

// SetupPostgres starts (or reuses) a postgres container with fsync disabled.
//
//nolint:whitespace // can't make both editor and linter happy
func SetupPostgres(
	ctx context.Context,
	user, password, dbName string,
	opts ...PostgresContainerOption,
) (*PostgresContainer, error) {
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		return nil, err
	}
	req := testcontainers.ContainerRequest{
		Image:        defaultImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		Cmd: []string{"postgres", "-c", "fsync=off"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}
	for _, opt := range opts {
		opt(&req)
	}

	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		Container: container,
		user:      user,
		password:  password,
		dbName:    dbName,
		port:      port,
	}, nil
}

// URL returns a postgresql:// url pointing to the mapped port of the container.
func (c *PostgresContainer) URL(ctx context.Context) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := c.MappedPort(ctx, c.port)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, mapped.Port(), c.dbName), nil
}

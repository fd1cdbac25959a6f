package discovery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSession struct {
	outcome  *models.ExecutionOutcome
	err      error
	commands []string
}

func (m *mockSession) Run(_ context.Context, command string, _ time.Duration) (*models.ExecutionOutcome, error) {
	m.commands = append(m.commands, command)
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func (m *mockSession) Close() error { return nil }

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var testHost = models.HostConfig{Name: "docker01", Address: "10.0.0.11", DockerRoot: "/opt/docker"}

func TestDiscover_SortsByName(t *testing.T) {
	session := &mockSession{outcome: &models.ExecutionOutcome{
		Stdout: "/opt/docker/vaultwarden\n/opt/docker/joplin\n/opt/docker/paperless-ngx\n",
	}}

	svc := New(testLogger())
	projects, err := svc.Discover(context.Background(), session, testHost)

	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, models.Project{Name: "joplin", Path: "/opt/docker/joplin"}, projects[0])
	assert.Equal(t, models.Project{Name: "paperless-ngx", Path: "/opt/docker/paperless-ngx"}, projects[1])
	assert.Equal(t, models.Project{Name: "vaultwarden", Path: "/opt/docker/vaultwarden"}, projects[2])

	require.Len(t, session.commands, 1)
	assert.Contains(t, session.commands[0], "find /opt/docker -maxdepth 2 -name 'docker-compose.yml'")
}

func TestDiscover_EmptyRoot(t *testing.T) {
	session := &mockSession{outcome: &models.ExecutionOutcome{Stdout: "\n"}}

	svc := New(testLogger())
	projects, err := svc.Discover(context.Background(), session, testHost)

	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestDiscover_CommandFailure(t *testing.T) {
	session := &mockSession{outcome: &models.ExecutionOutcome{ExitCode: 1, Stderr: "find: '/opt/docker': No such file or directory"}}

	svc := New(testLogger())
	_, err := svc.Discover(context.Background(), session, testHost)

	require.Error(t, err)
	var cmdErr *models.CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestDiscover_TransportFailure(t *testing.T) {
	session := &mockSession{err: errors.New("session torn down")}

	svc := New(testLogger())
	_, err := svc.Discover(context.Background(), session, testHost)

	assert.Error(t, err)
}

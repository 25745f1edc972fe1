package dockeragent

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/require"
)

func stdcopyFrame(stream byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestExecuteTaskReturnsDemuxedOutput(t *testing.T) {
	ag, mock := NewMockAgent(Config{Image: "agent:latest", AgentBinary: "/usr/local/bin/agent-entrypoint"})

	framed := append(stdcopyFrame(1, "work done\n"), stdcopyFrame(2, "warning: low disk\n")...)

	mock.ContainerExecAttachFunc = func(ctx context.Context, execID string, cfg container.ExecStartOptions) (types.HijackedResponse, error) {
		server, clientConn := net.Pipe()
		go func() {
			buf := make([]byte, 4096)
			for {
				if _, err := server.Read(buf); err != nil {
					server.Close()
					return
				}
			}
		}()
		return types.HijackedResponse{
			Conn:   clientConn,
			Reader: bufio.NewReader(strings.NewReader(string(framed))),
		}, nil
	}

	result, err := ag.ExecuteTask(context.Background(), "do the task", "/tmp/workspace")
	require.NoError(t, err)
	require.Equal(t, "work done\n", result.Stdout)
	require.Equal(t, "warning: low disk\n", result.Stderr)
	require.True(t, result.Completed)
}

func TestEnsureImageSkipsPullWhenPresent(t *testing.T) {
	ag, mock := NewMockAgent(Config{Image: "agent:latest"})

	mock.ImageListFunc = func(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
		return []image.Summary{{ID: "sha256:abc", RepoTags: []string{"agent:latest"}}}, nil
	}
	pulled := false
	mock.ImagePullFunc = func(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
		pulled = true
		return io.NopCloser(strings.NewReader("")), nil
	}

	require.NoError(t, ag.ensureImage(context.Background()))
	require.False(t, pulled, "image already present locally, should not pull")
}

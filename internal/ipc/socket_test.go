package ipc

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/vdisplay/internal/display"
)

type stubHandler struct {
	statusErr error
}

func (h *stubHandler) HandleStatus() (*StatusResponse, error) {
	if h.statusErr != nil {
		return nil, h.statusErr
	}
	return &StatusResponse{
		AnyVirtual: true,
		Clients: []ClientInfo{
			{ID: 7, Mode: "virtual", Devices: []string{"VDISPLAY1"}},
			{ID: 9, Mode: "display", Display: "DP-2"},
		},
	}, nil
}

func (h *stubHandler) HandleResolutions() (*ResolutionsResponse, error) {
	return &ResolutionsResponse{
		Resolutions: []display.Resolution{{Width: 1920, Height: 1080}},
	}, nil
}

func startTestServer(t *testing.T, handler Handler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "control.sock")
	server, err := NewSocketServer(handler, socketPath)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return socketPath
}

func TestStatusQuery(t *testing.T) {
	socketPath := startTestServer(t, &stubHandler{})

	client, err := Connect(socketPath)
	require.NoError(t, err)
	defer client.Close()

	status, err := client.Status()
	require.NoError(t, err)
	assert.True(t, status.AnyVirtual)
	require.Len(t, status.Clients, 2)
	assert.Equal(t, 7, status.Clients[0].ID)
	assert.Equal(t, []string{"VDISPLAY1"}, status.Clients[0].Devices)
	assert.Equal(t, "DP-2", status.Clients[1].Display)
}

func TestResolutionsQuery(t *testing.T) {
	socketPath := startTestServer(t, &stubHandler{})

	client, err := Connect(socketPath)
	require.NoError(t, err)
	defer client.Close()

	resolutions, err := client.Resolutions()
	require.NoError(t, err)
	require.Len(t, resolutions.Resolutions, 1)
	assert.Equal(t, int32(1920), resolutions.Resolutions[0].Width)
}

func TestHandlerErrorPropagates(t *testing.T) {
	socketPath := startTestServer(t, &stubHandler{statusErr: fmt.Errorf("not ready")})

	client, err := Connect(socketPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestMultipleQueriesOnOneConnection(t *testing.T) {
	socketPath := startTestServer(t, &stubHandler{})

	client, err := Connect(socketPath)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 5; i++ {
		_, err := client.Status()
		require.NoError(t, err)
		_, err = client.Resolutions()
		require.NoError(t, err)
	}
}

func TestConnectWithoutServer(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "nothing.sock"))
	assert.Error(t, err)
}

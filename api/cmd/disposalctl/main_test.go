package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/predict"
)

func TestNormalizeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"similar_generic_name": "Paracetamol",
		"disposal_category": [{"value":"category1","confidence":0.8}],
		"risk_level": "low"
	}`), 0o644))

	var buf bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"normalize", path, "--name", "panadol"})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, `"Paracetamol"`)
	assert.Contains(t, out, `"riskLevel": "LOW"`)
	assert.Contains(t, out, `"inputChannel": "text"`)
}

func TestNormalizeCommand_Stdin(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&buf)
	cmd.SetIn(strings.NewReader(`{"similar_generic_name":"Ibuprofen"}`))
	cmd.SetArgs([]string{"normalize", "-", "--channel", "image"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Ibuprofen")
}

func TestNormalizeCommand_BadChannel(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(`{}`))
	cmd.SetArgs([]string{"normalize", "-", "--channel", "fax"})
	assert.Error(t, cmd.Execute())
}

func TestPredictErr(t *testing.T) {
	var rej *rejectedError
	err := predictErr(&predict.FailedError{Engine: "mlservice", Message: "Medicine not recognised"})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Medicine not recognised", err.Error())

	assert.False(t, errors.As(predictErr(errors.New("dial tcp")), &rej))
}

func TestRunWatch_PrintsOnChangeOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = io.WriteString(w, `{"success":true,"data":{"token":"t","user":{"id":"u1","role":"user"}}}`)
		case "/disposals":
			_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"d1","genericName":"Morphine","riskLevel":"HIGH","status":"pending_review"}]}`)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var buf bytes.Buffer
	err := runWatch(ctx, &buf, "disposals", watchOptions{
		email: "a@b.c", password: "x", interval: 20 * time.Millisecond, baseURL: srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "--- disposals"))
	assert.Contains(t, buf.String(), "Morphine")
}

func TestRunWatch_Validates(t *testing.T) {
	assert.Error(t, runWatch(context.Background(), io.Discard, "users", watchOptions{}))
	assert.Error(t, runWatch(context.Background(), io.Discard, "pickups", watchOptions{}))
}

package genai_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stigtools/estig/internal/genai"
	"github.com/stigtools/estig/internal/model"
)

func TestNewClient_RejectsBadURL(t *testing.T) {
	t.Parallel()

	tests := []string{
		"localhost:11434",         // no scheme
		"http://",                 // no host
		"http://localhost/ollama", // path not allowed
	}
	for _, raw := range tests {
		_, err := genai.NewClient(raw, "m", time.Second)
		require.Error(t, err, raw)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "testmodel", req.Model)

		_ = json.NewEncoder(w).Encode(map[string]string{"response": "Get-Item"})
	}))
	defer srv.Close()

	c, err := genai.NewClient(srv.URL, "testmodel", time.Second)
	require.NoError(t, err)

	out, err := c.Generate(t.Context(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "Get-Item", out)
}

func TestGenerate_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := genai.NewClient(srv.URL, "m", time.Second)
	require.NoError(t, err)

	_, err = c.Generate(t.Context(), "prompt")
	require.ErrorIs(t, err, model.ErrServer)
}

func TestGenerate_ConnectionError(t *testing.T) {
	t.Parallel()

	// a listener that is already closed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := genai.NewClient(addr, "m", time.Second)
	require.NoError(t, err)

	_, err = c.Generate(t.Context(), "prompt")
	require.ErrorIs(t, err, model.ErrConnection)
}

func TestGenerate_Timeout(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-done
	}))
	defer srv.Close()
	defer close(done)

	c, err := genai.NewClient(srv.URL, "m", 50*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Generate(t.Context(), "prompt")
	require.ErrorIs(t, err, model.ErrTimeout)
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "Get-Item", "Get-Item"},
		{"plain fence", "```\nGet-Item\n```", "Get-Item"},
		{"language tag", "```powershell\nGet-Item\n```", "Get-Item"},
		{"unterminated fence", "```powershell\nGet-Item", "Get-Item"},
		{"surrounding whitespace", "  ```\nGet-Item\n```  ", "Get-Item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, genai.StripFences(tt.in))
		})
	}
}

func TestValidationPrompt(t *testing.T) {
	t.Parallel()

	p := genai.ValidationPrompt("RHEL 8 STIG", "V-230222", "Remove telnet", "The telnet package must not be installed.")
	require.Contains(t, p, "V-230222")
	require.Contains(t, p, "RHEL 8 STIG")
	require.Contains(t, p, "Remove telnet")
	require.Contains(t, p, "telnet package")
}

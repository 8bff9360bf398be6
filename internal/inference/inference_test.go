package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePrompt(t *testing.T) {
	assert.Equal(t,
		"<bos><start_of_turn>user\nWrite Go code for:\nreverse a string<end_of_turn>\n<start_of_turn>model\n",
		GeneratePrompt(FamilyGemma, "reverse a string", "Go"))
	assert.Equal(t,
		"Instruct: Write Go code for reverse a string\nOutput:",
		GeneratePrompt(FamilyPhi, "reverse a string", "Go"))
	assert.Equal(t,
		"Generate Go code: reverse a string",
		GeneratePrompt(FamilyPlain, "reverse a string", "Go"))
	assert.Contains(t,
		GeneratePrompt(FamilyDeepSeek, "reverse a string", "Go"),
		"### Instruction:\nYou are an expert coding assistant. Write Go code for: reverse a string\n### Response:\n")
}

func TestExplainPrompt(t *testing.T) {
	assert.Equal(t, "Explain this beginner code:\n\nx := 1", ExplainPrompt(FamilyPlain, "x := 1", "beginner"))
	assert.Equal(t, "Instruct: Explain this beginner code:\n\nx := 1\nOutput:", ExplainPrompt(FamilyPhi, "x := 1", "beginner"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "code", Clean(FamilyGemma, "junk<start_of_turn>model\n more<start_of_turn>model\n code \n"))
	assert.Equal(t, "answer", Clean(FamilyPhi, "Instruct: x\nOutput: answer"))
	assert.Equal(t, "Output: kept", Clean(FamilyDeepSeek, "  Output: kept "))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(append(config.DefaultModels(), config.ModelConfig{Name: "starcoder", Endpoint: "http://sc:80/"}), "http://models:8000/")

	m, err := c.Lookup("phi-2")
	require.NoError(t, err)
	assert.Equal(t, "microsoft/phi-2", m.ID)
	assert.Equal(t, FamilyPhi, m.Family)
	assert.Equal(t, "http://models:8000", m.Endpoint)

	m, err = c.Lookup("starcoder")
	require.NoError(t, err)
	assert.Equal(t, FamilyPlain, m.Family)
	assert.Equal(t, "http://sc:80", m.Endpoint)

	_, err = c.Lookup("gpt-9")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	assert.Equal(t, []string{"gemma", "deepseek", "phi-2", "starcoder"}, c.Names())
}

type stubClient struct {
	model  Model
	prompt string
	params Params
	reply  string
	err    error
}

func (s *stubClient) Complete(_ context.Context, model Model, prompt string, params Params) (string, error) {
	s.model, s.prompt, s.params = model, prompt, params
	return s.reply, s.err
}

func TestGateway(t *testing.T) {
	catalog := NewCatalog(config.DefaultModels(), "http://models")
	stub := &stubClient{reply: "<start_of_turn>model\nfmt.Println(1)\n"}
	g := NewGateway(catalog, stub, logging.Discard())
	ctx := context.Background()

	code, err := g.Generate(ctx, "print one", "Go", "")
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(1)", code)
	assert.Equal(t, "gemma", stub.model.Name)
	assert.Equal(t, Params{MaxNewTokens: 300, Temperature: 0.2}, stub.params)

	stub.reply = " It prints one. "
	text, err := g.Explain(ctx, "fmt.Println(1)", "concise", "")
	require.NoError(t, err)
	assert.Equal(t, "It prints one.", text)
	assert.Equal(t, "deepseek", stub.model.Name)
	assert.Equal(t, Params{MaxNewTokens: 250, Temperature: 0.7}, stub.params)

	stub.err = errors.New("connection refused")
	_, err = g.Generate(ctx, "x", "Go", "phi-2")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	_, err = g.Explain(ctx, "x", "y", "unknown")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestGateway_LogsModelCallsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	catalog := NewCatalog(config.DefaultModels(), "http://models")
	g := NewGateway(catalog, &stubClient{reply: "ok"}, logging.New(&buf, "json", "debug"))

	_, err := g.Generate(context.Background(), "print one", "Go", "phi-2")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"model call finished"`)
	assert.Contains(t, buf.String(), `"model":"phi-2"`)

	buf.Reset()
	quiet := NewGateway(catalog, &stubClient{reply: "ok"}, logging.New(&buf, "json", "info"))
	_, err = quiet.Generate(context.Background(), "print one", "Go", "")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestHTTPClient(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.Equal(t, "google/gemma-2b-it", r.Header.Get("X-Model-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Inputs == "fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model is loading"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{GeneratedText: "ok"})
	}))
	defer srv.Close()

	c := NewHTTPClient("hf_test", time.Second)
	model := Model{Name: "gemma", ID: "google/gemma-2b-it", Endpoint: srv.URL}

	out, err := c.Complete(context.Background(), model, "hello", Params{MaxNewTokens: 10, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 10, got.Parameters.MaxNewTokens)
	assert.True(t, got.Parameters.DoSample)

	_, err = c.Complete(context.Background(), model, "fail", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "model is loading")
}

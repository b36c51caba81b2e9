package oracle

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponsePreferredShape(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("hello world"))
	raw := []byte(`[{"path":"docs/a.md","content_b64":"` + content + `"}]`)

	edits, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	require.Equal(t, "docs/a.md", edits[0].Path)
	require.Equal(t, "hello world", string(edits[0].Content))
}

func TestParseResponseStripsMarkdownFence(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("x"))
	raw := []byte("```json\n[{\"path\":\"a.txt\",\"content_b64\":\"" + content + "\"}]\n```")

	edits, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, edits, 1)
}

func TestParseResponseTolersEmbeddedWhitespaceInBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("some longer content here"))
	wrapped := encoded[:len(encoded)/2] + "\n" + encoded[len(encoded)/2:]
	raw := []byte(`[{"path":"a.txt","content_b64":"` + wrapped + `"}]`)

	edits, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Equal(t, "some longer content here", string(edits[0].Content))
}

func TestParseResponseSalvagesTruncatedTail(t *testing.T) {
	c1 := base64.StdEncoding.EncodeToString([]byte("first"))
	c2 := base64.StdEncoding.EncodeToString([]byte("second"))
	// The third object is cut off mid-stream, as a truncated model
	// response tail would look.
	raw := []byte(`[{"path":"a.txt","content_b64":"` + c1 + `"},{"path":"b.txt","content_b64":"` + c2 + `"},{"path":"c.txt","content_b64":"YWJj`)

	edits, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, edits, 2)
	require.Equal(t, "a.txt", edits[0].Path)
	require.Equal(t, "b.txt", edits[1].Path)
}

func TestParseResponseLegacyMapping(t *testing.T) {
	raw := []byte(`{"docs/a.md":"plain text content"}`)

	edits, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	require.Equal(t, "docs/a.md", edits[0].Path)
	require.Equal(t, "plain text content", string(edits[0].Content))
}

func TestValidatePathsRejectsMismatch(t *testing.T) {
	edits := []FileEdit{{Path: "a.txt"}, {Path: "extra.txt"}}
	err := validatePaths(edits, []string{"a.txt", "b.txt"})
	require.Error(t, err)
}

func TestValidatePathsAcceptsExactSet(t *testing.T) {
	edits := []FileEdit{{Path: "a.txt"}, {Path: "b.txt"}}
	err := validatePaths(edits, []string{"b.txt", "a.txt"})
	require.NoError(t, err)
}

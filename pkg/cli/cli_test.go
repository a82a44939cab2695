package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/moex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// run executes the root command against a fresh database in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MOEX_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MOEX_DB", "")

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(append([]string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--db", filepath.Join(dir, "moex.db"),
		"--log-level", "error",
	}, args...))

	err := RootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, moex.Version, out)
}

func TestPersonAddAndDisable(t *testing.T) {
	dir := t.TempDir()

	id, err := run(t, dir, "person", "add", "--name", "Ada", "--email", "ada@example.com", "--secret", "lighthouse")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	out, err := run(t, dir, "person", "disable", id)
	require.NoError(t, err)
	assert.Equal(t, "disabled "+id, out)

	_, err = run(t, dir, "person", "disable", "no-such-person")
	assert.Error(t, err)
}

func TestAskWithoutKeyReportsUnavailable(t *testing.T) {
	out, err := run(t, t.TempDir(), "ask", "how", "do", "I", "file", "expenses?")
	require.NoError(t, err)
	assert.Equal(t, chat.MessageUnavailable, out)
}

type syncCounter struct {
	bytes.Buffer
	syncs int
}

func (s *syncCounter) Sync() error {
	s.syncs++
	return nil
}

func TestTeardownSyncsLogger(t *testing.T) {
	require.NotNil(t, RootCmd.PersistentPostRun)

	sink := &syncCounter{}
	prev := logger
	logger = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zapcore.InfoLevel))
	t.Cleanup(func() { logger = prev })

	logger.Info("buffered")
	RootCmd.PersistentPostRun(RootCmd, nil)

	assert.Equal(t, 1, sink.syncs)
	assert.Contains(t, sink.String(), "buffered")
}

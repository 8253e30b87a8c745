package util

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })

	closer, err := InitLogger(LogConfig{
		Level:      "debug",
		Directory:  dir,
		MaxBackups: 3,
		Console:    true,
		ConsoleOut: &console,
	})
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello from test")
	require.NoError(t, closer.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), LogFilePrefix))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello from test"`)
	assert.Contains(t, string(data), `"app":"banprobe"`)
	assert.Contains(t, console.String(), "hello from test")
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-10 * 24 * time.Hour)

	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, LogFilePrefix+base.AddDate(0, 0, i).Format("2006-01-02")+".log")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		mod := base.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	other := filepath.Join(dir, "unrelated.log")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	assert.Equal(t, 3, CleanOldLogs(dir, 2))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		LogFilePrefix + base.AddDate(0, 0, 3).Format("2006-01-02") + ".log",
		LogFilePrefix + base.AddDate(0, 0, 4).Format("2006-01-02") + ".log",
		"unrelated.log",
	}, names)

	assert.Equal(t, 0, CleanOldLogs(dir, 0))
}

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	require.NoError(t, EnsureSelfSignedCert(certFile, keyFile))

	_, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	data, err := os.ReadFile(certFile)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.NoError(t, cert.VerifyHostname("localhost"))
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Existing files are kept.
	require.NoError(t, EnsureSelfSignedCert(certFile, keyFile))
	again, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestGetDiskUsageWalksUpToExistingParent(t *testing.T) {
	usage, err := GetDiskUsage(filepath.Join(t.TempDir(), "not", "yet", "history.db"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage.UsedPercent, 0.0)
}

func TestGetSystemAndProcessInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUThreads)

	proc, err := GetProcessInfo()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), proc.PID)
	assert.Positive(t, proc.Goroutines)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

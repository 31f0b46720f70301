package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeListFolder(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func fullListFolder(t *testing.T) string {
	t.Helper()
	return writeListFolder(t, map[string]string{
		"IP.list":         "10.0.0.0/8\n192.168.1.1\n",
		"RDNS.list":       ".example.com\n",
		"ASN.list":        "AS13335\n",
		"USER_AGENT.list": "(?i)curl\n",
		"URI.list":        "^/admin\n",
	})
}

func TestLoadListFiles(t *testing.T) {
	raw, err := LoadListFiles(fullListFolder(t))
	require.NoError(t, err)

	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, raw["IP"])
	require.Equal(t, []string{".example.com"}, raw["RDNS"])
	require.Equal(t, []string{"AS13335"}, raw["ASN"])
	require.Equal(t, []string{"(?i)curl"}, raw["USER_AGENT"])
	require.Equal(t, []string{"^/admin"}, raw["URI"])
}

func TestLoadListFilesSkipsCommentsAndBlanks(t *testing.T) {
	dir := writeListFolder(t, map[string]string{
		"IP.list":         "# internal ranges\n\n10.0.0.0/8\n  \n# tail comment\n172.16.0.0/12\n",
		"RDNS.list":       "\n",
		"ASN.list":        "",
		"USER_AGENT.list": "# none yet\n",
		"URI.list":        "  ^/health  \n",
	})

	raw, err := LoadListFiles(dir)
	require.NoError(t, err)

	require.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, raw["IP"])
	require.Empty(t, raw["RDNS"])
	require.Empty(t, raw["ASN"])
	require.Empty(t, raw["USER_AGENT"])
	require.Equal(t, []string{"^/health"}, raw["URI"])
}

func TestLoadListFilesMissingKindFails(t *testing.T) {
	dir := writeListFolder(t, map[string]string{
		"IP.list":         "10.0.0.0/8\n",
		"RDNS.list":       "",
		"ASN.list":        "",
		"USER_AGENT.list": "",
	})

	_, err := LoadListFiles(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "URI")
}

func TestIsListFile(t *testing.T) {
	require.True(t, isListFile("/etc/whitelist/lists/IP.list"))
	require.True(t, isListFile("USER_AGENT.list"))
	require.False(t, isListFile("/etc/whitelist/lists/IP.list.bak"))
	require.False(t, isListFile("/etc/whitelist/lists/notes.list"))
	require.False(t, isListFile("/etc/whitelist/lists/README.md"))
}

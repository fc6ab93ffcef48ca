package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKallisto(t *testing.T, dir, sample string, tpm []string) {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("target_id\tlength\teff_length\test_counts\ttpm\n")
	for i, g := range []string{"g1", "g2", "g3"} {
		b.WriteString(g + "\t1000\t800\t10\t" + tpm[i] + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, sample+".tsv"), b.Bytes(), 0o644))
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(t.Context()))
	return out.String()
}

func TestIngestQueryDownload(t *testing.T) {
	root := t.TempDir()
	in := t.TempDir()
	writeKallisto(t, in, "s1", []string{"1", "0", "5"})
	writeKallisto(t, in, "s2", []string{"2", "0", "6"})
	writeKallisto(t, in, "s3", []string{"3", "0", "7"})

	out := execute(t, "ingest", "expr-1", in, "--root", root, "--study", "demo")
	assert.Contains(t, out, "matrices/expr-1.rnam")
	assert.Contains(t, out, "3 features")

	out = execute(t, "inspect", "expr-1", "--root", root, "--verify")
	assert.Contains(t, out, "TPM")
	assert.Contains(t, out, "demo")

	out = execute(t, "query", "expr-1", "--root", root,
		"--features", "g3,g1", "--samples", "s1,s2", "--format", "tsv")
	var view ticketView
	require.NoError(t, gojson.Unmarshal([]byte(out), &view))
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "matrices/expr-1.rnam", view.Source)

	out = execute(t, "download", view.ID, "--root", root)
	assert.Equal(t, "feature\ts1\ts2\ng3\t5\t6\ng1\t1\t2\n", out)

	out = execute(t, "sweep", "--root", root)
	assert.Equal(t, "removed 0 expired tickets\n", out)

	out = execute(t, "query", "expr-1", "--root", root,
		"--features", "g3,g1", "--samples", "s1,s2,s3", "--min-feature", "g1,2", "--max-feature", "g3,6",
		"--format", "tsv", "-o", "-")
	assert.Equal(t, "feature\ts2\ng3\t6\ng1\t2\n", out)
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	c := loadConfig(v)
	assert.Equal(t, "local", c.Backend)
	assert.Equal(t, "data", c.Root)
	assert.Equal(t, filepath.Join("data", "rnaget.db"), c.Catalog)

	v.Set("store.backend", "S3")
	v.Set("store.root", "/srv/rnaget")
	c = loadConfig(v)
	assert.Equal(t, "s3", c.Backend)
	assert.Equal(t, filepath.Join("/srv/rnaget", "rnaget.db"), c.Catalog)
}

func TestOpenStoreErrors(t *testing.T) {
	_, _, err := openStore(t.Context(), config{Backend: "s3"})
	assert.Error(t, err)

	_, _, err = openStore(t.Context(), config{Backend: "minio", Bucket: "b"})
	assert.Error(t, err)

	_, _, err = openStore(t.Context(), config{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config{LogLevel: "debug", LogFormat: "json"})
	assert.NoError(t, err)

	_, err = newLogger(config{LogLevel: "loud"})
	assert.Error(t, err)

	_, err = newLogger(config{LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
}

func TestMatrixPath(t *testing.T) {
	assert.Equal(t, "matrices/a.rnam", matrixPath("a"))
	assert.Equal(t, "matrices/a.bin", matrixPath("a.bin"))
	assert.Equal(t, "matrices/a.rnam", matrixPath("matrices/a.rnam"))
}

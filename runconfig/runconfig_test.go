package runconfig_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
	"github.com/lattice-substrate/canon-fingerprint/conformance"
	"github.com/lattice-substrate/canon-fingerprint/extimpl"
	"github.com/lattice-substrate/canon-fingerprint/runconfig"
)

func TestLoad(t *testing.T) {
	cfg, err := runconfig.Load("testdata/conformance.yaml")
	require.NoError(t, err)

	assert.Equal(t, "subset", cfg.Mode)
	assert.Equal(t, []string{"ts", "jcs"}, cfg.Active)
	assert.Equal(t, 4, cfg.Workers)
	require.Len(t, cfg.Implementations, 3)
	assert.Equal(t, "go", cfg.Implementations["ts"].Builtin)
	assert.Equal(t, "file", cfg.Implementations["worker"].Input)

	reg, rc, err := cfg.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"jcs", "ts", "worker"}, reg.Names())
	assert.Equal(t, conformance.ModeSubset, rc.Mode)
	assert.Equal(t, []string{"ts", "jcs"}, rc.Active)
	assert.Equal(t, 10*time.Second, rc.Timeout)
	assert.Equal(t, 4, rc.Workers)

	impl, ok := reg.Lookup("worker")
	require.True(t, ok)
	cmd, ok := impl.(*extimpl.Command)
	require.True(t, ok, "worker should be an external command, got %T", impl)

	base, err := filepath.Abs("testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "bin", "cfp-worker"), "--hash", "sha256"}, cmd.Argv)
	assert.Equal(t, filepath.Join(base, "work"), cmd.Dir)
	assert.Equal(t, extimpl.InputFile, cmd.Input)
	assert.Equal(t, map[string]string{"LC_ALL": "C"}, cmd.Env)
}

func TestDefault(t *testing.T) {
	cfg := runconfig.Default()
	require.NoError(t, cfg.Validate())

	reg, rc, err := cfg.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ts"}, reg.Names())
	assert.Equal(t, conformance.ModeStrict, rc.Mode)
	assert.Zero(t, rc.Timeout)

	impl, _ := reg.Lookup("ts")
	v := cfptoken.MustObject()
	fp, err := impl.Compute(context.Background(), &v)
	require.NoError(t, err)
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", fp)
}

func TestBlake3Builtin(t *testing.T) {
	cfg, err := runconfig.Parse([]byte("hash: blake3\nimplementations:\n  ts: {builtin: go}\n"))
	require.NoError(t, err)
	alg, err := cfg.Algorithm()
	require.NoError(t, err)
	assert.Equal(t, cfphash.BLAKE3, alg)

	reg, _, err := cfg.Build(nil)
	require.NoError(t, err)
	impl, _ := reg.Lookup("ts")
	v := cfptoken.MustObject()
	got, err := impl.Compute(context.Background(), &v)
	require.NoError(t, err)
	want, err := cfphash.Sum(cfphash.BLAKE3, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBareCommandNameUsesPath(t *testing.T) {
	cfg, err := runconfig.Parse([]byte("implementations:\n  py: {command: [python3, fp.py]}\n"))
	require.NoError(t, err)
	reg, _, err := cfg.Build(nil)
	require.NoError(t, err)
	impl, _ := reg.Lookup("py")
	assert.Equal(t, []string{"python3", "fp.py"}, impl.(*extimpl.Command).Argv)
	assert.Equal(t, extimpl.InputStdin, impl.(*extimpl.Command).Input)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":               "",
		"unknown field":       "implementations: {ts: {builtin: go}}\nretries: 3\n",
		"unknown impl field":  "implementations: {ts: {builtin: go, shell: true}}\n",
		"no implementations":  "mode: strict\n",
		"bad mode":            "mode: loose\nimplementations: {ts: {builtin: go}}\n",
		"bad hash":            "hash: md5\nimplementations: {ts: {builtin: go}}\n",
		"bad timeout":         "timeout: soon\nimplementations: {ts: {builtin: go}}\n",
		"zero timeout":        "timeout: 0s\nimplementations: {ts: {builtin: go}}\n",
		"negative workers":    "workers: -2\nimplementations: {ts: {builtin: go}}\n",
		"bad name":            "implementations: {TS: {builtin: go}}\n",
		"both kinds":          "implementations: {ts: {builtin: go, command: [fp]}}\n",
		"neither kind":        "implementations: {ts: {input: stdin}}\n",
		"unknown builtin":     "implementations: {ts: {builtin: node}}\n",
		"builtin with env":    "implementations: {ts: {builtin: go, env: {A: b}}}\n",
		"empty command":       "implementations: {ts: {command: [\"\"]}}\n",
		"bad input mode":      "implementations: {ts: {command: [fp], input: socket}}\n",
		"subset no active":    "mode: subset\nimplementations: {ts: {builtin: go}}\n",
		"active in strict":    "active: [ts]\nimplementations: {ts: {builtin: go}}\n",
		"active unconfigured": "mode: subset\nactive: [rust]\nimplementations: {ts: {builtin: go}}\n",
		"cyberphone blake3":   "hash: blake3\nimplementations: {jcs: {builtin: cyberphone}}\n",
		"not a mapping":       "- ts\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := runconfig.Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, cfperr.Is(err, cfperr.Config), "got %v", err)
			assert.Equal(t, cfperr.ExitInvalid, cfperr.ExitCodeOf(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := runconfig.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, cfperr.Is(err, cfperr.Config))
}

func TestValidateAfterOverride(t *testing.T) {
	cfg := runconfig.Default()
	cfg.Mode = "subset"
	require.Error(t, cfg.Validate())
	cfg.Active = []string{"ts"}
	require.NoError(t, cfg.Validate())
}

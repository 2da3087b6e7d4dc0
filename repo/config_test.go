package repo

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGeneratesDefaultConfig(t *testing.T) {
	tempDir := t.TempDir()

	r, err := Load(tempDir)
	require.Nil(t, err)

	assert.Equal(t, tempDir, r.Config.RepoRoot)
	assert.Equal(t, "mem", r.Config.Ledger.Mode)
	assert.Equal(t, uint64(50), r.Config.Governance.MinQuorumPercent)
	assert.Equal(t, 24*time.Hour, r.Config.Governance.VotingDuration)

	// config file is written on first load
	assert.True(t, Exist(path.Join(tempDir, cfgFileName)))
}

func TestLoadReadsExistingConfig(t *testing.T) {
	tempDir := t.TempDir()

	r, err := Load(tempDir)
	require.Nil(t, err)

	r.Config.Governance.MinQuorumPercent = 66
	r.Config.MultiSig.Owners = []string{
		"0x073F5395476468e4Fc785301026607bc4eBab128",
		"0xc55999C2D16dB17261c7140963118efaFb64F897",
	}
	r.Config.MultiSig.RequiredApprovals = 2
	require.Nil(t, r.Flush())

	reloaded, err := Load(tempDir)
	require.Nil(t, err)
	assert.Equal(t, uint64(66), reloaded.Config.Governance.MinQuorumPercent)
	assert.Equal(t, uint64(2), reloaded.Config.MultiSig.RequiredApprovals)
	assert.Len(t, reloaded.Config.MultiSig.Owners, 2)
}

func TestMarshalConfig(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	raw, err := MarshalConfig(cfg)
	require.Nil(t, err)
	assert.Contains(t, raw, "[governance]")
	assert.Contains(t, raw, "min_quorum_percent")
	assert.Contains(t, raw, "[multisig]")
}

func TestLoadRepoRootFromEnv(t *testing.T) {
	// explicit path wins over everything
	p, err := LoadRepoRootFromEnv("/tmp/explicit")
	require.Nil(t, err)
	assert.Equal(t, "/tmp/explicit", p)

	t.Setenv(rootPathEnvVar, "/tmp/from-env")
	p, err = LoadRepoRootFromEnv("")
	require.Nil(t, err)
	assert.Equal(t, "/tmp/from-env", p)

	os.Unsetenv(rootPathEnvVar)
	p, err = LoadRepoRootFromEnv("")
	require.Nil(t, err)
	assert.NotEmpty(t, p)
}

package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryLoadsMunicipalities(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)
	sites, err := reg.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 31)

	first := sites[0]
	require.Equal(t, int64(1), first.ID)
	require.Equal(t, "Aa en Hunze", first.Name)
	require.Equal(t, "https://www.aaenhunze.nl", first.HomeURL)
	require.True(t, first.Enabled)
	require.NotNil(t, first.Latitude)
	require.InDelta(t, 53.01, *first.Latitude, 1e-6)
}

func TestParseEnabledFlag(t *testing.T) {
	t.Parallel()

	sites, err := Parse([]byte(`
sites:
  - id: 1
    name: Delft
    vacancy_url: https://www.werkenvoordelft.nl/
  - id: 2
    name: Ede
    website: https://www.ede.nl
    enabled: false
`))
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.True(t, sites[0].Enabled)
	require.Empty(t, sites[0].HomeURL)
	require.False(t, sites[1].Enabled)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing id":   "sites:\n  - name: Delft\n",
		"missing name": "sites:\n  - id: 3\n",
		"duplicate":    "sites:\n  - id: 1\n    name: A\n  - id: 1\n    name: B\n",
		"not yaml":     "sites: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestFileRegistryReadsOnEachCall(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - id: 1\n    name: Delft\n"), 0o600))

	reg, err := NewFile(path)
	require.NoError(t, err)
	sites, err := reg.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 1)

	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - id: 1\n    name: Delft\n  - id: 2\n    name: Ede\n"), 0o600))
	sites, err = reg.Sites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
}

func TestFileRegistryMissingFile(t *testing.T) {
	t.Parallel()

	reg, err := NewFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	_, err = reg.Sites(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStaticReturnsCopy(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)
	sites, err := reg.Sites(context.Background())
	require.NoError(t, err)
	sites[0].Name = "mutated"

	again, err := reg.Sites(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Aa en Hunze", again[0].Name)
}

func TestOpenChoosesBackend(t *testing.T) {
	t.Parallel()

	reg, err := Open("")
	require.NoError(t, err)
	require.IsType(t, &Static{}, reg)

	reg, err = Open("/etc/vacancy/sites.yaml")
	require.NoError(t, err)
	require.IsType(t, &File{}, reg)
}

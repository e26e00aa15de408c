package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_SaveLoadList(t *testing.T) {
	s := NewStore(t.TempDir())

	names, err := s.ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.SaveProfile(&Profile{Name: "web", Spec: "80,443,8000-8002"}))
	require.NoError(t, s.SaveProfile(&Profile{Name: "db", Spec: "3306,5432", Description: "databases"}))

	p, err := s.LoadProfile("web")
	require.NoError(t, err)
	assert.Equal(t, "80,443,8000-8002", p.Spec)
	assert.Equal(t, []int{80, 443, 8000, 8001, 8002}, p.Ports())
	assert.False(t, p.UpdatedAt.IsZero())

	names, err = s.ListProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, names)

	require.NoError(t, s.DeleteProfile("db"))
	_, err = s.LoadProfile("db")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfile_Validation(t *testing.T) {
	s := NewStore(t.TempDir())

	assert.Error(t, s.SaveProfile(&Profile{Name: "../escape", Spec: "80"}))
	assert.Error(t, s.SaveProfile(&Profile{Name: "", Spec: "80"}))
	assert.Error(t, s.SaveProfile(&Profile{Name: "empty", Spec: "  "}))

	_, err := s.LoadProfile("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplate_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	in := &Template{
		Name:   "nightly",
		Target: "10.0.0.5",
		Ports:  "1-1024",
		Options: TemplateOptions{
			Concurrency:    200,
			ConnectTimeout: 1500 * time.Millisecond,
			Advisory:       true,
		},
	}
	require.NoError(t, s.SaveTemplate(in))

	data, err := os.ReadFile(filepath.Join(dir, "templates", "nightly.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "connect_timeout: 1.5s")

	out, err := s.LoadTemplate("nightly")
	require.NoError(t, err)
	assert.Equal(t, in.Target, out.Target)
	assert.Equal(t, in.Ports, out.Ports)
	assert.Equal(t, in.Options, out.Options)

	names, err := s.ListTemplates()
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly"}, names)

	assert.Error(t, s.SaveTemplate(&Template{Name: "no-target"}))
}

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH_WEB_SCRAPING", dir)
	t.Setenv("COOKIES_PATH", "")
	t.Setenv("ELTURF_RATE_LIMIT_RPS", "0.5")
	t.Setenv("IMAP_SECURE", "off")
	t.Setenv("SCHEDULER_VENUES", " hch, ,vsc ")
	t.Setenv("VOLANTE_MAIL_FETCH_MAX", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.WebScrapingPath)
	assert.Equal(t, "", cfg.CookiesPath)
	assert.Equal(t, 0.5, cfg.ElturfRateLimitRPS)
	assert.False(t, cfg.IMAPSecure)
	assert.Equal(t, []string{"HCH", "VSC"}, cfg.SchedulerVenues)
	assert.Equal(t, 20, cfg.VolanteMailFetchMax)
	assert.Equal(t, filepath.Join(dir, "resultados_detalle"), cfg.ResultsDir())
	assert.Equal(t, filepath.Join(dir, "programas"), cfg.ProgramsDir())
}

func TestRequire(t *testing.T) {
	var cfg Config
	assert.EqualError(t, cfg.Require("ELTURF_USUARIO", "  "), "missing required env var: ELTURF_USUARIO")
	assert.NoError(t, cfg.Require("ELTURF_USUARIO", "someone"))
}

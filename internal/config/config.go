package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath          string
	WebScrapingPath string
	PDFScrapingPath string
	CookiesPath     string
	OutputDir       string

	ElturfBaseURL        string
	ElturfLoginURL       string
	ElturfUser           string
	ElturfPassword       string
	ElturfResultPagePath string
	ElturfRateLimitRPS   float64
	ElturfTimeoutMs      int

	ScrapingVenue       string
	ScrapingDay         string
	NormalizePrecedence string
	MatchFuzzyThreshold float64

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	VolanteMailProvider string
	VolanteMailLabel    string
	VolanteMailFetchMax int

	SchedulerCron       string
	SchedulerVenues     []string
	SchedulerAutoExport bool

	AppEnv   string
	LogLevel string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	webPath := getEnv("PATH_WEB_SCRAPING", filepath.Join(cwd, "data", "web"))
	cfg := Config{
		DBPath:          getEnv("DB_PATH", filepath.Join(cwd, "data", "hipica.db")),
		WebScrapingPath: webPath,
		PDFScrapingPath: getEnv("PATH_PDF_SCRAPING", filepath.Join(cwd, "data", "pdf")),
		CookiesPath:     getEnv("COOKIES_PATH", filepath.Join(webPath, "cookies_sesion.json")),
		OutputDir:       getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ElturfBaseURL:        getEnv("ELTURF_BASE_URL", "https://www.elturf.com"),
		ElturfLoginURL:       getEnv("ELTURF_LOGIN_URL", "https://www.elturf.com/login"),
		ElturfUser:           getEnv("ELTURF_USUARIO", ""),
		ElturfPassword:       getEnv("ELTURF_CLAVE", ""),
		ElturfResultPagePath: getEnv("ELTURF_RESULT_PAGE_PATH", "/resultados/carrera/{id}"),
		ElturfRateLimitRPS:   getEnvFloat("ELTURF_RATE_LIMIT_RPS", 2),
		ElturfTimeoutMs:      getEnvInt("ELTURF_TIMEOUT_MS", 30000),

		ScrapingVenue:       getEnv("SCRAPING_HIPODROMO", "HCH"),
		ScrapingDay:         getEnv("SCRAPING_DIA_REUNION", ""),
		NormalizePrecedence: getEnv("NORMALIZE_PRECEDENCE", ""),
		MatchFuzzyThreshold: getEnvFloat("MATCH_FUZZY_THRESHOLD", 0.80),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		VolanteMailProvider: getEnv("VOLANTE_MAIL_PROVIDER", "gmail"),
		VolanteMailLabel:    getEnv("VOLANTE_MAIL_LABEL", "INBOX"),
		VolanteMailFetchMax: getEnvInt("VOLANTE_MAIL_FETCH_MAX", 20),

		SchedulerCron:       getEnv("SCHEDULER_CRON", "*/30 10-23 * * *"),
		SchedulerVenues:     getEnvList("SCHEDULER_VENUES", []string{"HCH", "CHS"}),
		SchedulerAutoExport: getEnvBool("SCHEDULER_AUTO_EXPORT", true),

		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// ResultsDir is where per venue/date results artifacts are written.
func (c Config) ResultsDir() string {
	return filepath.Join(c.WebScrapingPath, "resultados_detalle")
}

func (c Config) ProgramsDir() string {
	return filepath.Join(c.WebScrapingPath, "programas")
}

func (c Config) VolanteJSONDir(venue string) string {
	return filepath.Join(c.PDFScrapingPath, "json", venue)
}

func (c Config) VolantePDFDir(venue string) string {
	return filepath.Join(c.PDFScrapingPath, "pdfs", venue)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

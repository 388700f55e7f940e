package config

import "time"

type Config struct {
	ConfigVersion int               `yaml:"configVersion"`
	Server        ServerConfig      `yaml:"server"`
	Decoys        DecoyConfig       `yaml:"decoys"`
	Scanner       ScannerConfig     `yaml:"scanner"`
	Signatures    []SignatureConfig `yaml:"signatures"`
	Geo           GeoConfig         `yaml:"geo"`
	Storage       StorageConfig     `yaml:"storage"`
	API           APIConfig         `yaml:"api"`
	Logging       LoggingConfig     `yaml:"logging"`
	Metrics       MetricsConfig     `yaml:"metrics"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

type DecoyConfig struct {
	Paths      []string `yaml:"paths"`
	TokenField string   `yaml:"tokenField"`
}

type ScannerConfig struct {
	PatternTimeout time.Duration `yaml:"patternTimeout"`
	MaxValueBytes  int           `yaml:"maxValueBytes"`
	DecodeDepth    int           `yaml:"decodeDepth"`
}

// SignatureConfig describes a signature appended to the built-in catalog.
type SignatureConfig struct {
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	Type         string `yaml:"type"`
	Pattern      string `yaml:"pattern"`
	PatternsFile string `yaml:"patternsFile"`
}

type GeoConfig struct {
	CountryHeaders []string `yaml:"countryHeaders"`
	CityHeaders    []string `yaml:"cityHeaders"`
}

type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	EventLog string `yaml:"eventLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

const (
	SignatureRegex    = "regex"
	SignatureKeywords = "keywords"
)

const DriverSQLite = "sqlite3"

// DefaultDecoyPaths are paths automated scanners commonly probe.
var DefaultDecoyPaths = []string{
	"/hp/",
	"/contact/",
	"/api/contact/",
	"/contact/submit/",
	"/submit-form/",
	"/api/message/",
	"/send-message/",
	"/company/",
	"/feedback/",
	"/support-ticket/",
	"/api/v1/comments/",
	"/api/v1/reviews/",
	"/api/v1/profile/update/",
	"/submit-feedback/",
	"/post/create/",
	"/upload/",
	"/upload/image/",
	"/phpinfo.php",
	"/adminer.php",
	"/debug.php",
	"/login.php",
	"/dashboard.php",
	"/api/admin/",
	"/api/v1/admin/login/",
	"/api/v1/user/create/",
	"/api/v1/user/update/",
	"/api/v1/messages/",
	"/api/v1/submit/",
	"/.git/",
	"/backup/",
	"/old/",
	"/test/",
	"/dev/",
	"/admin-login/",
	"/cp/",
	"/dashboard/login/",
	"/adminpanel/",
	"/search/",
	"/api/search/",
	"/query/",
	"/lookup/",
	"/filter/",
}

// ApplyDefaults fills zero values. It is called by Load and is safe to call
// on a hand-built Config.
func (c *Config) ApplyDefaults() {
	if c.ConfigVersion == 0 {
		c.ConfigVersion = 1
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if len(c.Decoys.Paths) == 0 {
		c.Decoys.Paths = append([]string(nil), DefaultDecoyPaths...)
	}
	if c.Decoys.TokenField == "" {
		c.Decoys.TokenField = "ctoken"
	}
	if c.Scanner.PatternTimeout == 0 {
		c.Scanner.PatternTimeout = 50 * time.Millisecond
	}
	if c.Scanner.MaxValueBytes == 0 {
		c.Scanner.MaxValueBytes = 64 << 10
	}
	if len(c.Geo.CountryHeaders) == 0 {
		c.Geo.CountryHeaders = []string{"CF-IPCountry", "X-AppEngine-Country"}
	}
	if len(c.Geo.CityHeaders) == 0 {
		c.Geo.CityHeaders = []string{"CF-IPCity"}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "lure.db"
	}
	if c.Storage.MaxOpenConns == 0 {
		c.Storage.MaxOpenConns = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

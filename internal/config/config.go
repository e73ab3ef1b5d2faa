package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

type Config struct {
	Env        string `yaml:"env" validate:"oneof=dev stage prod"`
	Run        Run    `yaml:"run"`
	HTTPServer `yaml:"http_server"`
	Ledger     Ledger   `yaml:"ledger"`
	LLM        LLM      `yaml:"llm"`
	Media      Media    `yaml:"media"`
	Sources    Sources  `yaml:"sources"`
	Channels   Channels `yaml:"channels"`
}

type Run struct {
	// Limit caps how many links a single run may publish; 0 means unlimited.
	Limit int `yaml:"limit" validate:"min=0"`
	// TimeBudget bounds a run; the run drains gracefully when it elapses.
	TimeBudget     time.Duration `yaml:"time_budget"`
	KeywordLimit   int           `yaml:"keyword_limit" validate:"min=0"`
	ForbiddenTerms []string      `yaml:"forbidden_terms"`

	Retry Retry `yaml:"retry"`
}

type Retry struct {
	MaxRetries   int           `yaml:"max_retries" validate:"min=0"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

var defaultRun = Run{
	Limit:        25,
	KeywordLimit: 3,
	Retry: Retry{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	},
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:        8080,
	ReadTimeout: 5 * time.Second,
	// Runs execute synchronously inside the request.
	WriteTimeout:   30 * time.Minute,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Ledger struct {
	Backend  string   `yaml:"backend" validate:"oneof=file postgres s3"`
	Key      string   `yaml:"key"`
	File     File     `yaml:"file"`
	Postgres Postgres `yaml:"postgres"`
	S3       S3       `yaml:"s3"`
}

var defaultLedger = Ledger{
	Backend: "file",
	File:    File{Dir: "./data"},
}

type File struct {
	Dir string `yaml:"dir"`
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type S3 struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
}

type LLM struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type Media struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Size    string `yaml:"size"`
}

type Sources struct {
	Catalog Catalog                `yaml:"catalog"`
	Static  []models.AffiliateLink `yaml:"static"`
}

type Catalog struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"`
	PartnerTag string   `yaml:"partner_tag"`
	Keywords   []string `yaml:"keywords"`
}

type Channels struct {
	Wordpress Wordpress `yaml:"wordpress"`
	Pinterest Pinterest `yaml:"pinterest"`
}

type Wordpress struct {
	APIURL            string `yaml:"api_url"`
	Token             string `yaml:"token"`
	PendingReview     bool   `yaml:"pending_review"`
	TitleMaxLen       int    `yaml:"title_max_len"`
	DescriptionMaxLen int    `yaml:"description_max_len"`
}

type Pinterest struct {
	BaseURL           string `yaml:"base_url"`
	AccessToken       string `yaml:"access_token"`
	TitleMaxLen       int    `yaml:"title_max_len"`
	DescriptionMaxLen int    `yaml:"description_max_len"`
}

// Load reads the config file, expanding ${VAR} references from the
// environment so secrets stay out of the file itself.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Run = defaultRun
	cfg.HTTPServer = defaultHTTPServer
	cfg.Ledger = defaultLedger
	cfg.Ledger.Postgres = defaultPostgres
}

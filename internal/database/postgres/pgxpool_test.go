package postgres

import (
	"testing"

	"meeting-bot/internal/config"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDSN(t *testing.T) {
	got := DSN(config.DatabaseConfig{
		DBHost:     "db",
		DBPort:     "5432",
		DBName:     "bot",
		DBUser:     "svc",
		DBPassword: "it's",
		DBSSLMode:  "disable",
	})
	want := `host=db port=5432 dbname=bot sslmode=disable user=svc password='it\'s'`
	if got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}

	got = DSN(config.DatabaseConfig{DBHost: "db", DBPort: "5432", DBName: "bot", DBPassword: `a\'b\`, DBSSLMode: "disable"})
	if want := `host=db port=5432 dbname=bot sslmode=disable password='a\\\'b\\'`; got != want {
		t.Fatalf("backslashes not escaped: %q, want %q", got, want)
	}

	if got := DSN(config.DatabaseConfig{DBHost: "db", DBPort: "5432", DBName: "bot", DBSSLMode: "require"}); got != "host=db port=5432 dbname=bot sslmode=require" {
		t.Fatalf("unexpected dsn without credentials %q", got)
	}
}

func TestDSN_PasswordSurvivesParsing(t *testing.T) {
	for _, pw := range []string{`plain`, `it's`, `back\slash`, `\'both\'`, `trailing\`} {
		dsn := DSN(config.DatabaseConfig{DBHost: "db", DBPort: "5432", DBName: "bot", DBUser: "svc", DBPassword: pw, DBSSLMode: "disable"})
		cfg, err := pgconn.ParseConfig(dsn)
		if err != nil {
			t.Fatalf("password %q: parse %q: %v", pw, dsn, err)
		}
		if cfg.Password != pw {
			t.Fatalf("password %q came back as %q", pw, cfg.Password)
		}
	}
}

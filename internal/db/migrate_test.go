package db

import (
	"path/filepath"
	"testing"

	"github.com/promptcraft/promptcraft/internal/models"
)

func TestMigrate_SeedsDefaultsIdempotently(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if DialectName(conn) != DialectSQLite {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate pass %d: %v", i+1, errMigrate)
		}
	}

	var tierCount int64
	if errCount := conn.Model(&models.Tier{}).Count(&tierCount).Error; errCount != nil {
		t.Fatalf("count tiers: %v", errCount)
	}
	if tierCount != int64(len(DefaultTiers())) {
		t.Fatalf("expected %d tiers, got %d", len(DefaultTiers()), tierCount)
	}

	var free models.Tier
	if errFind := conn.First(&free, "id = ?", models.FreeTierID).Error; errFind != nil {
		t.Fatalf("load free tier: %v", errFind)
	}
	if free.MonthlyQuota != 50 || !free.IsEnabled {
		t.Fatalf("unexpected free tier: %+v", free)
	}

	var modelCount int64
	if errCount := conn.Model(&models.ModelConfig{}).Where("is_active = ?", true).Count(&modelCount).Error; errCount != nil {
		t.Fatalf("count models: %v", errCount)
	}
	if modelCount != 2 {
		t.Fatalf("expected 2 active models, got %d", modelCount)
	}

	var templateCount int64
	if errCount := conn.Model(&models.Template{}).Count(&templateCount).Error; errCount != nil {
		t.Fatalf("count templates: %v", errCount)
	}
	if templateCount != 3 {
		t.Fatalf("expected 3 templates, got %d", templateCount)
	}
}

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost/db":      false,
		"postgresql://u:p@localhost/db":    false,
		"host=localhost user=u dbname=db":  false,
		"file:promptcraft.db":              true,
		"sqlite://data/promptcraft.sqlite": true,
		"./promptcraft.db":                 true,
		":memory:":                         true,
	}
	for dsn, want := range cases {
		if got := isSQLiteDSN(dsn); got != want {
			t.Fatalf("isSQLiteDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestCaseInsensitiveLikeExpr(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "like.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if got := CaseInsensitiveLikeExpr(conn, "name"); got != "LOWER(name) LIKE ?" {
		t.Fatalf("unexpected expr %q", got)
	}
	if got := NormalizeLikePattern(conn, "%Cat%"); got != "%cat%" {
		t.Fatalf("unexpected pattern %q", got)
	}
}

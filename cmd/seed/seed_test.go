package main

import (
	"context"
	"os"
	"strings"
	"testing"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/logging"
)

func loadExample(t *testing.T) *seedFile {
	t.Helper()
	f, err := os.Open("catalog.example.yaml")
	if err != nil {
		t.Fatalf("open example: %v", err)
	}
	defer f.Close()
	doc, err := parseSeed(f)
	if err != nil {
		t.Fatalf("parse example: %v", err)
	}
	return doc
}

func TestParseExample(t *testing.T) {
	doc := loadExample(t)
	if doc.Admin == nil || doc.Admin.Email != "admin@example.com" {
		t.Fatalf("admin = %+v", doc.Admin)
	}
	if len(doc.Brands) != 1 || len(doc.Brands[0].Products) != 2 {
		t.Fatalf("brands = %+v", doc.Brands)
	}
	if doc.Brands[0].Products[0].PriceMinor != 459900 {
		t.Fatalf("price = %d", doc.Brands[0].Products[0].PriceMinor)
	}
	if len(doc.Legal) != 2 || !strings.Contains(doc.Legal[0].Body, "\n\n") {
		t.Fatalf("legal pages should keep paragraph breaks: %+v", doc.Legal)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := parseSeed(strings.NewReader("brands:\n  - name: x\n    colour: red\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	application, err := app.New(app.Options{Config: cfg}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	doc := loadExample(t)

	first, err := seed(ctx, application, doc, logging.NewDiscard())
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if first.Skipped != 0 || first.Created == 0 {
		t.Fatalf("first run = %+v", first)
	}

	second, err := seed(ctx, application, doc, logging.NewDiscard())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second.Skipped == 0 {
		t.Fatalf("second run should skip existing records: %+v", second)
	}

	admin, err := application.Users.Get(ctx, "admin-local")
	if err != nil || !admin.IsAdmin() {
		t.Fatalf("admin = %+v, %v", admin, err)
	}
	b, err := application.Brands.Storefront(ctx, "indigo-looms")
	if err != nil || b.Status != brand.StatusApproved {
		t.Fatalf("brand = %+v, %v", b, err)
	}
	page, err := application.Catalog.ListActive(ctx, catalog.Filter{BrandID: b.ID})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("products = %d, want 2", len(page.Items))
	}
	posts, err := application.Content.Blogs(ctx, false)
	if err != nil || len(posts) != 1 {
		t.Fatalf("published posts = %d, %v", len(posts), err)
	}
}

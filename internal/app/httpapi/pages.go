package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/catalog"
	"github.com/brandloom/storefront/internal/app/domain/content"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "product", "brand", "legal", "blogs", "blog", "error"}

// pages renders the storefront HTML.
type pages struct {
	app       *app.Application
	templates map[string]*template.Template
	log       *logging.Logger
}

func newPages(application *app.Application, log *logging.Logger) (*pages, error) {
	funcs := template.FuncMap{
		"price":      formatPrice,
		"paragraphs": paragraphs,
		"first":      firstImage,
	}
	p := &pages{app: application, templates: make(map[string]*template.Template, len(pageNames)), log: log}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

func (p *pages) mount(r *mux.Router) {
	r.HandleFunc("/", p.home).Methods(http.MethodGet)
	r.HandleFunc("/products/{slug}", p.product).Methods(http.MethodGet)
	r.HandleFunc("/brands/{slug}", p.brand).Methods(http.MethodGet)
	r.HandleFunc("/legal/{kind}", p.legal).Methods(http.MethodGet)
	r.HandleFunc("/blog", p.blogs).Methods(http.MethodGet)
	r.HandleFunc("/blog/{slug}", p.blog).Methods(http.MethodGet)
}

type pageData struct {
	Title    string
	ShopName string
	Legal    []content.LegalKind
	Data     any
}

func (p *pages) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	var buf bytes.Buffer
	err := p.templates[name].Execute(&buf, pageData{
		Title:    title,
		ShopName: p.app.Config.Shop.Name,
		Legal:    content.LegalKinds,
		Data:     data,
	})
	if err != nil {
		p.log.WithContext(r.Context()).WithError(err).WithField("page", name).Error("render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *pages) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong. Please try again."
	if errors.IsCode(err, errors.CodeNotFound) {
		status = http.StatusNotFound
		message = "We couldn't find that page."
	} else {
		p.log.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("page failed")
	}
	p.render(w, r, status, "error", http.StatusText(status), message)
}

type homeData struct {
	Banners  []content.Banner
	Products []catalog.Product
}

func (p *pages) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	banners, err := p.app.Content.ActiveBanners(ctx)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	products, err := p.app.Catalog.First100(ctx)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "home", p.app.Config.Shop.Name, homeData{Banners: banners, Products: products})
}

type productData struct {
	Product catalog.Product
	Brand   brand.Brand
}

func (p *pages) product(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prod, err := p.app.Catalog.Storefront(ctx, mux.Vars(r)["slug"])
	if err != nil {
		p.fail(w, r, err)
		return
	}
	b, err := p.app.Brands.Get(ctx, prod.BrandID)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "product", prod.Name, productData{Product: prod, Brand: b})
}

type brandData struct {
	Brand    brand.Brand
	Products []catalog.Product
	Next     string
}

func (p *pages) brand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := p.app.Brands.Storefront(ctx, mux.Vars(r)["slug"])
	if err != nil {
		p.fail(w, r, err)
		return
	}
	page, err := p.app.Catalog.ListActive(ctx, catalog.Filter{BrandID: b.ID, Cursor: r.URL.Query().Get("cursor")})
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "brand", b.Name, brandData{Brand: b, Products: page.Items, Next: page.NextCursor})
}

func (p *pages) legal(w http.ResponseWriter, r *http.Request) {
	page, err := p.app.Content.LegalPage(r.Context(), content.LegalKind(mux.Vars(r)["kind"]))
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "legal", page.Title, page)
}

func (p *pages) blogs(w http.ResponseWriter, r *http.Request) {
	posts, err := p.app.Content.Blogs(r.Context(), false)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "blogs", "Journal", posts)
}

func (p *pages) blog(w http.ResponseWriter, r *http.Request) {
	post, err := p.app.Content.PublishedBlog(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		p.fail(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "blog", post.Title, post)
}

// formatPrice renders minor units with two decimals, e.g. "INR 1,299.00".
func formatPrice(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	whole := fmt.Sprintf("%d", minor/100)
	var grouped strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(c)
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, grouped.String(), minor%100)
}

// paragraphs splits plain text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, part := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstImage(images []string) string {
	if len(images) == 0 {
		return ""
	}
	return images[0]
}

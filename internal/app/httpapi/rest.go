package httpapi

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/middleware"
	"github.com/brandloom/storefront/internal/payment"
	"github.com/brandloom/storefront/internal/permissions"
	"github.com/brandloom/storefront/internal/upload"
)

// multipartOverhead allows for form boundaries and headers around the file.
const multipartOverhead = 64 << 10

func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, httputil.MaxRequestBodyBytes)
	if err != nil {
		httputil.WriteError(w, r, errors.InvalidInput(err.Error()))
		return
	}
	if err := s.app.Orders.HandlePaymentWebhook(r.Context(), body, r.Header.Get(payment.SignatureHeader)); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) shippingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, httputil.MaxRequestBodyBytes)
	if err != nil {
		httputil.WriteError(w, r, errors.InvalidInput(err.Error()))
		return
	}
	if err := s.app.Fulfillment.HandleWebhook(r.Context(), body); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// upload stores the multipart field "file" for the signed-in user.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.app.Uploads.MaxBytes()+multipartOverhead)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			httputil.WriteError(w, r, errors.InvalidInputf("file exceeds %d bytes", s.app.Uploads.MaxBytes()))
			return
		}
		httputil.WriteError(w, r, errors.InvalidInput("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	res, err := s.app.Uploads.Upload(r.Context(), principal.UserID, file)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// serveObject serves uploads held in memory. With S3 configured objects are
// served from the bucket's public URL and this route finds nothing.
func (s *Server) serveObject(w http.ResponseWriter, r *http.Request) {
	mem, ok := s.app.Objects.(*upload.MemoryStore)
	if !ok {
		http.NotFound(w, r)
		return
	}
	obj, ok := mem.Get("uploads/" + mux.Vars(r)["key"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(obj.Data)
	}
}

// orderFeed streams order events of a brand to members who can view orders.
func (s *Server) orderFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	brandID := mux.Vars(r)["id"]
	principal := middleware.PrincipalFrom(ctx)

	switch {
	case principal == nil:
		httputil.WriteError(w, r, errors.Unauthorized(""))
		return
	case principal.IsAdmin():
	case principal.IsAPIKey():
		if principal.BrandID != brandID || !principal.Permissions.Has(permissions.ViewOrders) {
			httputil.WriteError(w, r, errors.Forbidden(""))
			return
		}
	default:
		perms, err := s.app.Brands.MemberPermissions(ctx, brandID, principal.UserID)
		if stderrors.Is(err, storage.ErrNotFound) || errors.IsCode(err, errors.CodeNotFound) {
			httputil.WriteError(w, r, errors.Forbidden("Not a member of this brand"))
			return
		}
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if !perms.Has(permissions.ViewOrders) {
			httputil.WriteError(w, r, errors.Forbidden("").WithDetails("missing", permissions.ViewOrders.Names()))
			return
		}
	}

	s.app.Hub.Serve(w, r, brandID)
}

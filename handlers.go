package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
)

// request bodies carry base64 images, so allow more than a form post would need
const maxBodyBytes = 25 << 20

const defaultThumbnailWidth = 800

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

type server struct {
	products      ProductStore
	settings      SettingsStore
	media         MediaHost
	gate          *Gate
	lists         *responseCache[[]Product]
	secureCookies bool

	// tracks image cleanups still running after their response was sent
	cleanups sync.WaitGroup
}

// cleanup deletes a replaced or orphaned asset in the background.
func (s *server) cleanup(ctx context.Context, publicID string) {
	if strings.TrimSpace(publicID) == "" {
		return
	}
	s.cleanups.Add(1)
	go func() {
		defer s.cleanups.Done()
		destroyBestEffort(ctx, s.media, publicID)
	}()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return invalid("", "request body too large")
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return invalid("", "invalid JSON payload")
	}
	return nil
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- session ---

type loginRequest struct {
	Email    string `json:"email" schema:"email"`
	Password string `json:"password" schema:"password"`
}

// login accepts either JSON or a urlencoded form.
func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := r.ParseForm(); err != nil {
			writeError(w, invalid("", "invalid form"), "")
			return
		}
		if err := queryDecoder.Decode(&req, r.PostForm); err != nil {
			writeError(w, invalid("", "invalid form"), "")
			return
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}

	sess, err := s.gate.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		log.Printf("login: rejected credentials from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		writeError(w, err, "Failed to sign in")
		return
	}
	http.SetCookie(w, sessionCookieFor(sess, s.secureCookies))
	writeJSON(w, http.StatusOK, map[string]any{"token": sess.Token, "session": sess})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, clearedSessionCookie())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gate.sessionFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "session": sess})
}

// --- catalog reads ---

type listQuery struct {
	Sold  *bool `schema:"sold"`
	Width int   `schema:"width"`
}

func (s *server) filterFor(r *http.Request) (ProductFilter, listQuery, error) {
	var q listQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		return ProductFilter{}, q, invalid("", "invalid query")
	}
	_, authed := s.gate.sessionFromRequest(r)
	return ProductFilter{PublishedOnly: !authed, Sold: q.Sold}, q, nil
}

// cachedProducts serves a listing from the response cache when possible.
func (s *server) cachedProducts(w http.ResponseWriter, r *http.Request, f ProductFilter) ([]Product, error) {
	key := f.key()
	if out, ok := s.lists.get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		return out, nil
	}
	gen := s.lists.generation()
	out, err := s.products.ListProducts(r.Context(), f)
	if err != nil {
		return nil, err
	}
	s.lists.set(key, out, gen)
	w.Header().Set("X-Cache", "MISS")
	return out, nil
}

func (s *server) listProducts(w http.ResponseWriter, r *http.Request) {
	f, _, err := s.filterFor(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	out, err := s.cachedProducts(w, r, f)
	if err != nil {
		writeError(w, err, "Failed to fetch products")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to fetch product")
		return
	}
	if !p.IsPublished {
		if _, ok := s.gate.sessionFromRequest(r); !ok {
			writeError(w, ErrNotFound, "")
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

type catalogProduct struct {
	Product
	ThumbnailURL string `json:"thumbnailUrl"`
}

type settingsView struct {
	Settings
	HasLogo bool `json:"hasLogo"`
}

func viewOf(st Settings) settingsView {
	return settingsView{Settings: st, HasLogo: st.HasLogo()}
}

// loadSettings never fails: a store error is logged and defaults are served.
func (s *server) loadSettings(r *http.Request) Settings {
	st, err := s.settings.GetSettings(r.Context())
	if err != nil {
		log.Printf("settings: read failed, serving defaults: %v", err)
		return defaultSettings()
	}
	return st
}

// catalog bundles settings and the visible products for the storefront.
func (s *server) catalog(w http.ResponseWriter, r *http.Request) {
	f, q, err := s.filterFor(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	width := q.Width
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	list, err := s.cachedProducts(w, r, f)
	if err != nil {
		writeError(w, err, "Failed to fetch products")
		return
	}
	out := make([]catalogProduct, 0, len(list))
	for _, p := range list {
		out = append(out, catalogProduct{Product: p, ThumbnailURL: optimizeImageURL(p.ImageURL, width)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": viewOf(s.loadSettings(r)),
		"products": out,
	})
}

// --- product writes ---

type productRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Size          *string    `json:"size"`
	Technique     *string    `json:"technique"`
	Price         *priceText `json:"price"`
	ImageURL      *string    `json:"imageUrl"`
	ImagePublicID *string    `json:"imagePublicId"`
	IsSold        *bool      `json:"isSold"`
	IsPublished   *bool      `json:"isPublished"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// nonEmpty returns nil for absent or blank values so they leave fields alone.
func nonEmpty(s *string) *string {
	v := deref(s)
	if v == "" {
		return nil
	}
	return &v
}

func (req productRequest) newProduct() (NewProduct, error) {
	title := deref(req.Title)
	var rawPrice string
	if req.Price != nil {
		rawPrice = string(*req.Price)
	}
	if title == "" || rawPrice == "" {
		return NewProduct{}, invalid("", "Title and price are required")
	}
	price, err := parsePrice(rawPrice)
	if err != nil {
		return NewProduct{}, err
	}
	np := NewProduct{
		Title:         title,
		Description:   deref(req.Description),
		Size:          deref(req.Size),
		Technique:     nonEmpty(req.Technique),
		Price:         price,
		ImageURL:      deref(req.ImageURL),
		ImagePublicID: deref(req.ImagePublicID),
		IsPublished:   true,
	}
	if req.IsSold != nil {
		np.IsSold = *req.IsSold
	}
	if req.IsPublished != nil {
		np.IsPublished = *req.IsPublished
	}
	return np, nil
}

func (req productRequest) patch() (ProductPatch, error) {
	patch := ProductPatch{
		Title:         nonEmpty(req.Title),
		Description:   nonEmpty(req.Description),
		Size:          nonEmpty(req.Size),
		ImageURL:      nonEmpty(req.ImageURL),
		ImagePublicID: nonEmpty(req.ImagePublicID),
		IsPublished:   req.IsPublished,
	}
	if req.Technique != nil {
		if t := nonEmpty(req.Technique); t != nil {
			patch.Technique = t
		} else {
			patch.ClearTechnique = true
		}
	}
	if req.Price != nil && strings.TrimSpace(string(*req.Price)) != "" {
		price, err := parsePrice(string(*req.Price))
		if err != nil {
			return ProductPatch{}, err
		}
		patch.Price = &price
	}
	return patch, nil
}

func (s *server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	np, err := req.newProduct()
	if err != nil {
		writeError(w, err, "")
		return
	}
	p, err := s.products.CreateProduct(r.Context(), np)
	if err != nil {
		writeError(w, err, "Failed to create product")
		return
	}
	s.lists.invalidate()
	log.Printf("product created: %s %q order=%d", p.ID, p.Title, p.Order)
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, err, "")
		return
	}
	prev, err := s.products.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to update product")
		return
	}
	p, err := s.products.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		writeError(w, err, "Failed to update product")
		return
	}
	s.lists.invalidate()
	if patch.ImagePublicID != nil && prev.ImagePublicID != "" && prev.ImagePublicID != p.ImagePublicID {
		s.cleanup(r.Context(), prev.ImagePublicID)
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) toggleSold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsSold *bool `json:"isSold"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	p, err := s.products.SetSold(r.Context(), chi.URLParam(r, "id"), req.IsSold)
	if err != nil {
		writeError(w, err, "Failed to update product")
		return
	}
	s.lists.invalidate()
	writeJSON(w, http.StatusOK, p)
}

// deleteProduct removes the record, then cleans up its image. Image cleanup
// failure never fails the request.
func (s *server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.products.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to delete product")
		return
	}
	s.lists.invalidate()
	s.cleanup(r.Context(), p.ImagePublicID)
	writeMessage(w, http.StatusOK, "Product deleted")
}

func (s *server) reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Direction string `json:"direction"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, invalid("id", "ID and direction are required"), "")
		return
	}
	d, err := parseDirection(req.Direction)
	if err != nil {
		writeError(w, err, "")
		return
	}
	res, err := s.products.Reorder(r.Context(), strings.TrimSpace(req.ID), d)
	if err != nil {
		writeError(w, err, "Failed to reorder")
		return
	}
	if !res.Moved {
		writeMessage(w, http.StatusOK, "Already at the limit")
		return
	}
	s.lists.invalidate()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Reordered",
		"product": map[string]any{"id": res.ProductID, "order": res.ProductOrder},
		"sibling": map[string]any{"id": res.SiblingID, "order": res.SiblingOrder},
	})
}

// --- media ---

func (s *server) upload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		File string `json:"file"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	if strings.TrimSpace(req.File) == "" {
		writeError(w, invalid("file", "No file provided"), "")
		return
	}
	img, err := s.media.Upload(r.Context(), req.File, UploadOptions{
		Folder:         productFolder,
		Transformation: productTransformation,
	})
	if err != nil {
		writeError(w, err, "Failed to upload image")
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *server) destroyUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicID string `json:"publicId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, "")
		return
	}
	if strings.TrimSpace(req.PublicID) == "" {
		writeError(w, invalid("publicId", "No publicId provided"), "")
		return
	}
	if err := s.media.Destroy(r.Context(), req.PublicID); err != nil {
		writeError(w, err, "Failed to delete image")
		return
	}
	writeMessage(w, http.StatusOK, "Image deleted")
}

// --- settings ---

func (s *server) getLogo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.loadSettings(r)))
}

// settingsPatchFrom picks the branding, typography and logo groups out of a
// raw body. Unknown keys are ignored.
func settingsPatchFrom(raw map[string]json.RawMessage) (SettingsPatch, *string, error) {
	var (
		p    SettingsPatch
		file *string
	)
	str := func(key string) (*string, error) {
		msg, ok := raw[key]
		if !ok || string(msg) == "null" {
			return nil, nil
		}
		var v string
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, invalid(key, "must be a string")
		}
		return &v, nil
	}

	var err error
	if p.LogoText, err = str("text"); err != nil {
		return p, nil, err
	}
	if msg, ok := raw["showBoth"]; ok && string(msg) != "null" {
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return p, nil, invalid("showBoth", "must be a boolean")
		}
		p.ShowBoth = &b
	}
	for _, col := range typographyColumns {
		v, err := str(col.key)
		if err != nil {
			return p, nil, err
		}
		if v != nil {
			if p.Typography == nil {
				p.Typography = make(map[string]string)
			}
			p.Typography[col.key] = strings.TrimSpace(*v)
		}
	}
	if file, err = str("file"); err != nil {
		return p, nil, err
	}
	if file != nil && strings.TrimSpace(*file) == "" {
		file = nil
	}
	return p, file, nil
}

func (s *server) postLogo(w http.ResponseWriter, r *http.Request) {
	raw := map[string]json.RawMessage{}
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, err, "")
		return
	}
	patch, file, err := settingsPatchFrom(raw)
	if err != nil {
		writeError(w, err, "")
		return
	}
	if patch.empty() && file == nil {
		writeError(w, invalid("", "No data provided"), "")
		return
	}

	var oldPublicID string
	if file != nil {
		prev, err := s.settings.GetSettings(r.Context())
		if err != nil {
			writeError(w, err, "Failed to update settings")
			return
		}
		oldPublicID = prev.LogoPublicID
		img, err := s.media.Upload(r.Context(), *file, UploadOptions{Folder: logoFolder})
		if err != nil {
			writeError(w, err, "Failed to upload logo")
			return
		}
		patch.Logo = &img
	}

	st, err := s.settings.UpdateSettings(r.Context(), patch)
	if err != nil {
		if patch.Logo != nil {
			s.cleanup(r.Context(), patch.Logo.PublicID)
		}
		writeError(w, err, "Failed to update settings")
		return
	}
	if patch.Logo != nil && oldPublicID != "" && oldPublicID != patch.Logo.PublicID {
		s.cleanup(r.Context(), oldPublicID)
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (s *server) deleteLogo(w http.ResponseWriter, r *http.Request) {
	prev, err := s.settings.GetSettings(r.Context())
	if err != nil {
		writeError(w, err, "Failed to remove logo")
		return
	}
	st, err := s.settings.UpdateSettings(r.Context(), SettingsPatch{ClearLogo: true})
	if err != nil {
		writeError(w, err, "Failed to remove logo")
		return
	}
	s.cleanup(r.Context(), prev.LogoPublicID)
	writeJSON(w, http.StatusOK, viewOf(st))
}

// Package console renders the menu management pages and turns browser
// actions into state manager calls.
package console

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mchmarny/kitchen/pkg/menu"
	"github.com/mchmarny/kitchen/pkg/state"
)

//go:embed templates/*.html
var templateFS embed.FS

// Notice codes carried in the ?notice= query parameter after a redirect.
const (
	NoticeAdded   = "added"
	NoticeUpdated = "updated"
	NoticeDeleted = "deleted"
	NoticeFailed  = "failed"
)

// FailedMessage is the only thing users learn about a failed remote call.
const FailedMessage = "Operation failed. Please try again."

var notices = map[string]string{
	NoticeAdded:   "Menu item added successfully!",
	NoticeUpdated: "Menu item updated successfully!",
	NoticeDeleted: "Menu item deleted successfully!",
	NoticeFailed:  FailedMessage,
}

// Store is the part of the state manager the console drives.
type Store interface {
	EnsureLoaded(ctx context.Context) error
	Load(ctx context.Context) error
	Items() []menu.Item
	Get(id int64) (menu.Item, bool)
	BeginAdd()
	BeginEdit(id int64) (menu.Item, error)
	EditTarget() (menu.Item, bool)
	CloseForm()
	Submit(ctx context.Context, data menu.FormData) (menu.Item, error)
	RequestDelete(id int64) error
	PendingDelete() (int64, bool)
	CancelDelete()
	ConfirmDelete(ctx context.Context) error
}

// Console serves the menu pages.
type Console struct {
	store Store
	list  *template.Template
	form  *template.Template
}

// New parses the embedded templates and returns a console bound to store.
func New(store Store) (*Console, error) {
	funcs := template.FuncMap{"price": FormatPrice}

	list, err := template.New("list").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/list.html")
	if err != nil {
		return nil, err
	}

	form, err := template.New("form").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/form.html")
	if err != nil {
		return nil, err
	}

	return &Console{store: store, list: list, form: form}, nil
}

// Handler returns the console routes.
func (c *Console) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", c.index)
	r.Get("/api/items", c.items)
	r.Post("/reload", c.reload)

	r.Get("/items/new", c.newItem)
	r.Post("/items", c.create)
	r.Get("/items/{id}/edit", c.editItem)
	r.Post("/items/{id}", c.update)
	r.Post("/items/{id}/delete", c.requestDelete)
	r.Post("/form/close", c.closeForm)

	r.Post("/delete/confirm", c.confirmDelete)
	r.Post("/delete/cancel", c.cancelDelete)

	return r
}

type listPage struct {
	Title         string
	Notice        string
	NoticeIsError bool
	Items         []menu.Item
	Pending       *menu.Item
}

type formPage struct {
	Title         string
	Notice        string
	NoticeIsError bool
	Editing       bool
	Action        string
	Form          menu.FormData
	Errors        menu.FieldErrors
}

func (c *Console) index(w http.ResponseWriter, r *http.Request) {
	page := listPage{Title: "Our Menu"}

	if err := c.store.EnsureLoaded(r.Context()); err != nil {
		slog.Error("failed to load menu", "error", err)
		page.Notice, page.NoticeIsError = FailedMessage, true
	} else if code := r.URL.Query().Get("notice"); code != "" {
		page.Notice = notices[code]
		page.NoticeIsError = code == NoticeFailed
	}

	page.Items = c.store.Items()
	if id, ok := c.store.PendingDelete(); ok {
		if item, found := c.store.Get(id); found {
			page.Pending = &item
		}
	}

	c.render(w, c.list, http.StatusOK, page)
}

func (c *Console) items(w http.ResponseWriter, r *http.Request) {
	if err := c.store.EnsureLoaded(r.Context()); err != nil {
		slog.Error("failed to load menu", "error", err)
		writeError(w, http.StatusBadGateway, FailedMessage)
		return
	}
	writeJSON(w, http.StatusOK, menu.NewMenu(c.store.Items()))
}

func (c *Console) reload(w http.ResponseWriter, r *http.Request) {
	if err := c.store.Load(r.Context()); err != nil {
		slog.Error("failed to reload menu", "error", err)
		redirect(w, r, NoticeFailed)
		return
	}
	redirect(w, r, "")
}

func (c *Console) newItem(w http.ResponseWriter, _ *http.Request) {
	c.store.BeginAdd()
	c.renderForm(w, http.StatusOK, 0, menu.FormData{}, nil)
}

func (c *Console) editItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := c.store.BeginEdit(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	c.renderForm(w, http.StatusOK, id, item.Form(), nil)
}

func (c *Console) create(w http.ResponseWriter, r *http.Request) {
	if target, editing := c.store.EditTarget(); editing {
		slog.Debug("add submitted while editing, dropping edit target", "id", target.ID)
		c.store.BeginAdd()
	}
	c.submit(w, r, 0, NoticeAdded)
}

func (c *Console) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if target, editing := c.store.EditTarget(); !editing || target.ID != id {
		if _, err := c.store.BeginEdit(id); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	c.submit(w, r, id, NoticeUpdated)
}

func (c *Console) submit(w http.ResponseWriter, r *http.Request, id int64, notice string) {
	data, err := parseForm(r)
	if err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if _, err := c.store.Submit(r.Context(), data); err != nil {
		var ve *state.ValidationError
		if errors.As(err, &ve) {
			c.renderForm(w, http.StatusUnprocessableEntity, id, data, ve.Fields)
			return
		}
		slog.Error("failed to save menu item", "id", id, "error", err)
		redirect(w, r, NoticeFailed)
		return
	}

	redirect(w, r, notice)
}

func (c *Console) closeForm(w http.ResponseWriter, r *http.Request) {
	c.store.CloseForm()
	redirect(w, r, "")
}

func (c *Console) requestDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := c.store.RequestDelete(id); err != nil {
		http.NotFound(w, r)
		return
	}
	redirect(w, r, "")
}

func (c *Console) confirmDelete(w http.ResponseWriter, r *http.Request) {
	err := c.store.ConfirmDelete(r.Context())
	switch {
	case errors.Is(err, state.ErrNoPendingDelete):
		redirect(w, r, "")
	case err != nil:
		slog.Error("failed to delete menu item", "error", err)
		redirect(w, r, NoticeFailed)
	default:
		redirect(w, r, NoticeDeleted)
	}
}

func (c *Console) cancelDelete(w http.ResponseWriter, r *http.Request) {
	c.store.CancelDelete()
	redirect(w, r, "")
}

func (c *Console) renderForm(w http.ResponseWriter, status int, id int64, data menu.FormData, errs menu.FieldErrors) {
	page := formPage{
		Title:   "Add New Menu Item",
		Action:  "/items",
		Form:    data,
		Errors:  errs,
		Editing: id > 0,
	}
	if page.Editing {
		page.Title = "Edit Menu Item"
		page.Action = "/items/" + strconv.FormatInt(id, 10)
	}
	c.render(w, c.form, status, page)
}

func (c *Console) render(w http.ResponseWriter, t *template.Template, status int, data any) {
	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page", "template", t.Name(), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

// parseForm reads the submitted fields. An unparsable price becomes 0 so
// that validation reports it like a missing one.
func parseForm(r *http.Request) (menu.FormData, error) {
	if err := r.ParseForm(); err != nil {
		return menu.FormData{}, err
	}

	price, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get(menu.FieldPrice)), 10, 64)
	if err != nil {
		price = 0
	}

	return menu.FormData{
		Name:        r.PostForm.Get(menu.FieldName),
		Description: r.PostForm.Get(menu.FieldDescription),
		Price:       price,
		Image:       r.PostForm.Get(menu.FieldImage),
	}, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func redirect(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/"
	if notice != "" {
		target += "?" + url.Values{"notice": {notice}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

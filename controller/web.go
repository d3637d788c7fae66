package controller

import (
	"embed"
	"encoding/gob"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/billingcat/quickinvoice/model"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

//go:embed views/*.html
var views embed.FS

type Flash struct {
	Kind    string // "success" | "error" | "warning" | "info"
	Message string
}

// FlashLoader reads the flashes from the session (which empties them) and
// puts them into the echo context.
func FlashLoader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, _ := session.Get("session", c)
		raw := sess.Flashes() // reads & clears
		if len(raw) > 0 {
			_ = sess.Save(c.Request(), c.Response())
		}

		flashes := make([]Flash, 0, len(raw))
		for _, it := range raw {
			if f, ok := it.(Flash); ok {
				flashes = append(flashes, f)
			}
		}
		c.Set("flashes", flashes)
		return next(c)
	}
}

// AddFlash stores a flash message in the gorilla session.
func AddFlash(c echo.Context, kind, msg string) error {
	sess, _ := session.Get("session", c)
	sess.AddFlash(Flash{Kind: kind, Message: msg})
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return ErrInternal(fmt.Errorf("cannot save session: %w", err))
	}
	return nil
}

type appError struct {
	Code   string // stable internal error code for ops/support
	Status int    // HTTP status
	Err    error  // original error (never sent to the client)
	Public string // text that is safe to show (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

func ErrInvalid(err error, public string) *appError {
	return &appError{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Err: err, Public: public}
}
func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

// toAppError maps model errors: rejected input is the client's fault,
// everything else is ours.
func toAppError(err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ErrInvalid(err, ve.Error())
	}
	return ErrInternal(err)
}

// The Template interface implements rendering functionality for echo.
type Template struct {
	templates *template.Template
}

// Render is the echo way of rendering templates.
func (t *Template) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

type controller struct {
	cfg    *model.Config
	logger *slog.Logger
}

// log returns the request scoped logger.
func (ctrl *controller) log(c echo.Context) *slog.Logger {
	if l, ok := c.Get("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return ctrl.logger
}

func (ctrl *controller) defaultResponseMap(c echo.Context, title string) map[string]any {
	responseMap := map[string]any{
		"title": title,
		"path":  c.Request().URL.Path,
	}

	if flashes, ok := c.Get("flashes").([]Flash); ok {
		responseMap["flashes"] = flashes
	} else {
		responseMap["flashes"] = []Flash{}
	}

	if t := c.Get(middleware.DefaultCSRFConfig.ContextKey); t != nil {
		responseMap["CSRFToken"] = t.(string)
	}
	return responseMap
}

func (ctrl *controller) root(c echo.Context) error {
	return c.Render(http.StatusOK, "home.html", ctrl.defaultResponseMap(c, "Invoice Generator"))
}

func (ctrl *controller) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newLogger(cfg *model.Config) *slog.Logger {
	// Prod: JSON, Info+; Dev: Text, Debug
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewController is the entry point. It blocks until the server stops.
func NewController(cfg *model.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	e := newServer(cfg, logger)
	logger.Info("starting server", "port", cfg.Port, "mode", cfg.Mode)
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("cannot start application %w", err)
	}
	return nil
}

// newServer sets up echo with all middleware and routes.
func newServer(cfg *model.Config, logger *slog.Logger) *echo.Echo {
	gob.Register(Flash{})
	var templateFunc = template.FuncMap{
		"today": func() string {
			return time.Now().Format(model.DateLayout)
		},
		"nextmonth": func() string {
			return time.Now().AddDate(0, 0, 30).Format(model.DateLayout)
		},
	}

	tmpl := &Template{
		templates: template.Must(template.New("t").Funcs(templateFunc).ParseFS(views, "views/*.html")),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})) // adds X-Request-ID
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll:   false, // only log stack trace
		DisablePrintStack: true,
	}))

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()
			rid := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := logger.With(
				"request_id", rid,
			).WithGroup("http").With(
				"method", req.Method,
				"path", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			c.Set("logger", reqLogger)

			err := next(c)
			if err != nil {
				// let the error handler set the final status before logging
				c.Error(err)
				err = nil
			}

			if shouldSkipAccessLog(c) {
				return err
			}
			latency := time.Since(start)

			attrs := []any{
				"status", res.Status,
				"latency_ms", float64(latency.Microseconds()) / 1000.0,
			}

			switch {
			case res.Status >= 500:
				reqLogger.Error("http_request", attrs...)
			case res.Status >= 400:
				reqLogger.Warn("http_request", attrs...)
			default:
				reqLogger.Info("http_request", attrs...)
			}
			return err
		}
	})

	// Log everything internally, only send a safe payload to the client.
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		l, _ := c.Get("logger").(*slog.Logger)
		if l == nil {
			l = logger
		}

		var ae *appError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			// already an appError
		case model.IsValidationError(err):
			ae = toAppError(err).(*appError)
		case errors.As(err, &he):
			// Only 4xx messages reach the user, 5xx are masked.
			public := ""
			if he.Code >= 400 && he.Code < 500 {
				public = fmt.Sprint(he.Message)
			}
			ae = &appError{
				Code:   httpStatusToCode(he.Code),
				Status: he.Code,
				Err:    fmt.Errorf("%v", he.Message),
				Public: public,
			}
		default:
			ae = ErrInternal(err)
		}

		attrs := []any{
			"status", ae.Status,
			"code", ae.Code,
			"error", ae.Err.Error(),
		}
		if ae.Status >= 500 {
			l.Error("handler_error", attrs...)
		} else {
			l.Warn("handler_error", attrs...)
		}

		if wantsHTML(c.Request()) {
			kind := "error"
			if ae.Status >= 400 && ae.Status < 500 {
				kind = "warning"
			}
			if err = AddFlash(c, kind, userMessage(ae)); err != nil {
				l.Error("cannot add flash message", "error", err)
			}
			target := c.Request().Referer()
			if target == "" {
				target = "/create-invoice"
			}
			_ = c.Redirect(http.StatusSeeOther, target)
			return
		}

		_ = c.JSON(ae.Status, map[string]any{
			"error":      userMessage(ae),
			"error_code": ae.Code,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}

	store := sessions.NewCookieStore([]byte(cfg.CookieSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   cfg.SecureCookies,
	}
	e.Use(session.Middleware(store))
	e.Use(FlashLoader)
	if cfg.IsDevelopment() {
		// Disable caching for static files
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if strings.HasPrefix(c.Request().URL.Path, "/static/") {
					res := c.Response().Header()
					res.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
					res.Set("Pragma", "no-cache")
					res.Set("Expires", "0")
				}
				return next(c)
			}
		})
	}
	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLength:    32,
		TokenLookup:    "form:csrf,header:X-CSRF-Token",
		CookieName:     "csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		CookieSecure:   cfg.SecureCookies,
		Skipper: func(c echo.Context) bool {
			// the JSON API is not used from a browser session
			return strings.HasPrefix(c.Request().URL.Path, "/api/")
		},
	}))

	e.Renderer = tmpl
	ctrl := &controller{cfg: cfg, logger: logger}
	e.GET("/", ctrl.root)
	e.GET("/healthz", ctrl.healthz)
	e.Static("/static", "static")
	ctrl.invoiceInit(e)
	ctrl.apiInit(e)
	return e
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	switch ae.Code {
	case "INVALID_INPUT":
		return "The input is invalid. Please check and submit again."
	case "NOT_FOUND":
		return "The requested resource was not found."
	case "METHOD_NOT_ALLOWED":
		return "This HTTP method is not supported here."
	default:
		return "An error occurred. Please try again later."
	}
}

// kleine Helfer
func wantsHTML(r *http.Request) bool { return strings.Contains(r.Header.Get("Accept"), "text/html") }

func httpStatusToCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 413:
		return "TOO_LARGE"
	default:
		if status >= 500 {
			return "INTERNAL"
		}
		return "ERROR"
	}
}

func shouldSkipAccessLog(c echo.Context) bool {
	p := c.Request().URL.Path
	if strings.HasPrefix(p, "/static/") {
		return true
	}
	switch p {
	case "/favicon.ico", "/robots.txt", "/healthz":
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".webp":
		return true
	}
	m := c.Request().Method
	if m == http.MethodHead || m == http.MethodOptions {
		return true
	}
	return false
}

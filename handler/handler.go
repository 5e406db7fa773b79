package handler

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assistant-web/internal/branding"
	"assistant-web/internal/domain"
	"assistant-web/internal/usecase"
)

const (
	browserCookie       = "sid"
	browserCookieMaxAge = 30 * 24 * 60 * 60
	correlationHeader   = "X-Correlation-Id"
	defaultIdleTimeout  = 30 * time.Minute
	busyRefreshSeconds  = 1
)

// BrowserAuth is the auth provider as seen by one browser.
type BrowserAuth interface {
	usecase.Authenticator
	SignOut(ctx context.Context) error
	AccessToken(ctx context.Context) (string, error)
}

// AuthFactory returns the auth provider for a browser id.
type AuthFactory func(browserID string) (BrowserAuth, error)

// AssistantFactory returns the assistant caller used by a chat screen.
type AssistantFactory func(auth BrowserAuth) usecase.AssistantCaller

// Handler serves the login and chat screens.
type Handler struct {
	newAuth      AuthFactory
	newAssistant AssistantFactory
	logger       *slog.Logger
	idleTimeout  time.Duration
	secure       bool
	syncDispatch bool
	dispatchOpts []usecase.DispatcherOption
	now          func() time.Time

	engine *gin.Engine

	brandMu sync.RWMutex
	brand   branding.Branding

	mu       sync.Mutex
	browsers map[string]*browser
}

type Option func(*Handler)

func WithBranding(b branding.Branding) Option {
	return func(h *Handler) {
		h.brand = b
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithIdleTimeout sets how long an untouched screen is kept before it is
// discarded.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.idleTimeout = d
		}
	}
}

// WithSecureCookies marks the browser cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secure = secure
	}
}

// WithDispatcherOptions configures every chat screen's dispatcher.
func WithDispatcherOptions(opts ...usecase.DispatcherOption) Option {
	return func(h *Handler) {
		h.dispatchOpts = append(h.dispatchOpts, opts...)
	}
}

// WithSyncDispatch makes a send wait for the assistant reply before the
// response is written. Needed where the runtime freezes between requests.
func WithSyncDispatch(enabled bool) Option {
	return func(h *Handler) {
		h.syncDispatch = enabled
	}
}

func NewHandler(auth AuthFactory, assistant AssistantFactory, opts ...Option) (*Handler, error) {
	if auth == nil {
		return nil, errors.New("handler: auth factory must not be nil")
	}
	if assistant == nil {
		return nil, errors.New("handler: assistant factory must not be nil")
	}
	h := &Handler{
		newAuth:      auth,
		newAssistant: assistant,
		brand:        branding.Default(),
		logger:       slog.Default(),
		idleTimeout:  defaultIdleTimeout,
		now:          time.Now,
		browsers:     make(map[string]*browser),
	}
	for _, opt := range opts {
		opt(h)
	}

	engine, err := h.buildEngine()
	if err != nil {
		return nil, err
	}
	h.engine = engine
	return h, nil
}

// SetBranding replaces the presentation strings used by later requests.
func (h *Handler) SetBranding(b branding.Branding) {
	h.brandMu.Lock()
	defer h.brandMu.Unlock()
	h.brand = b
}

func (h *Handler) currentBranding() branding.Branding {
	h.brandMu.RLock()
	defer h.brandMu.RUnlock()
	return h.brand
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

func (h *Handler) buildEngine() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), h.requestLogger())

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("handler: parse templates: %w", err)
	}
	engine.SetHTMLTemplate(tmpl)

	staticFS, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, fmt.Errorf("handler: static assets: %w", err)
	}
	engine.StaticFS("/static", http.FS(staticFS))

	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/", h.handleLogin)
	engine.POST("/login", h.handleSubmitLogin)
	engine.POST("/logout", h.handleLogout)
	engine.GET("/chat", h.handleNewChat)
	engine.GET("/chat/:id", h.handleChat)
	engine.POST("/chat/:id/messages", h.handleSend)
	engine.GET("/chat/:id/transcript", h.handleTranscript)
	engine.POST("/chat/:id/close", h.handleClose)
	return engine, nil
}

// requestLogger logs one line per request and echoes the correlation id.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		corrID := c.GetHeader(correlationHeader)
		if corrID == "" {
			corrID = uuid.NewString()
		}
		c.Header(correlationHeader, corrID)

		c.Next()

		h.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"correlation_id", corrID,
		)
	}
}

// pageData is the view model shared by every template.
type pageData struct {
	Brand      branding.Branding
	Flashes    []flash
	Refresh    int
	Email      string
	Submitting bool
	ScreenID   string
	Messages   []messageView
	Busy       bool
}

type messageView struct {
	ID     string
	IsUser bool
	HTML   template.HTML
}

func toMessageViews(msgs []domain.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:     m.ID,
			IsUser: m.Sender == domain.SenderUser,
			HTML:   renderMarkdown(m.Text),
		})
	}
	return out
}

func (h *Handler) handleLogin(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	brand := h.currentBranding()
	ls, err := b.loginScreen(c.Request.Context(), brand)
	if err != nil {
		h.internalError(c, err)
		return
	}
	h.revalidate(c.Request.Context(), b)

	if !h.apply(c, ls.guard.Decide(domain.ScreenLogin)) {
		return
	}
	c.HTML(http.StatusOK, "login.html", pageData{
		Brand:      brand,
		Flashes:    b.flash.Drain(),
		Email:      b.takeEmail(),
		Submitting: ls.flow.Submitting(),
	})
}

func (h *Handler) handleSubmitLogin(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	brand := h.currentBranding()
	ls, err := b.loginScreen(c.Request.Context(), brand)
	if err != nil {
		h.internalError(c, err)
		return
	}

	email := c.PostForm("email")
	if _, err := ls.flow.Submit(c.Request.Context(), email, c.PostForm("password")); err != nil {
		if !usecase.IsCode(err, usecase.ErrorBusy) {
			h.logger.Info("sign in failed", "err", err)
		}
		b.rememberEmail(email)
		c.Redirect(http.StatusSeeOther, domain.ScreenLogin.Path())
		return
	}
	c.Redirect(http.StatusSeeOther, domain.ScreenChat.Path())
}

func (h *Handler) handleLogout(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	if err := b.auth.SignOut(c.Request.Context()); err != nil {
		h.logger.Warn("sign out failed", "err", err)
	}
	c.Redirect(http.StatusSeeOther, domain.ScreenLogin.Path())
}

func (h *Handler) handleNewChat(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	h.revalidate(c.Request.Context(), b)

	guard, err := usecase.NewSessionGuard(b.auth)
	if err != nil {
		h.internalError(c, err)
		return
	}
	guard.Start(c.Request.Context())
	if decision := guard.Decide(domain.ScreenChat); decision.Action != domain.ActionRender {
		guard.Release()
		h.apply(c, decision)
		return
	}

	conv := usecase.NewConversation(h.currentBranding().Greeting)
	opts := append([]usecase.DispatcherOption{usecase.WithDispatcherLogger(h.logger)}, h.dispatchOpts...)
	dispatcher, err := usecase.NewDispatcher(conv, h.newAssistant(b.auth), opts...)
	if err != nil {
		guard.Release()
		h.internalError(c, err)
		return
	}

	s := b.addChat(uuid.NewString(), guard, dispatcher, h.now())
	c.Redirect(http.StatusSeeOther, "/chat/"+s.id)
}

// chatScreen resolves the chat screen in the path and applies its access
// decision. It returns false when the response has already been written.
func (h *Handler) chatScreen(c *gin.Context) (*browser, *chatScreen, bool) {
	b, ok := h.browser(c)
	if !ok {
		return nil, nil, false
	}
	s := b.chat(c.Param("id"), h.now())
	if s == nil {
		c.Redirect(http.StatusSeeOther, domain.ScreenChat.Path())
		return nil, nil, false
	}
	h.revalidate(c.Request.Context(), b)

	decision := s.guard.Decide(domain.ScreenChat)
	if decision.Action == domain.ActionRedirect {
		b.closeChat(s.id)
	}
	if !h.apply(c, decision) {
		return nil, nil, false
	}
	return b, s, true
}

func (h *Handler) handleChat(c *gin.Context) {
	b, s, ok := h.chatScreen(c)
	if !ok {
		return
	}
	busy := s.dispatcher.Busy()
	data := pageData{
		Brand:    h.currentBranding(),
		Flashes:  b.flash.Drain(),
		ScreenID: s.id,
		Messages: toMessageViews(s.dispatcher.Conversation().Messages()),
		Busy:     busy,
	}
	if busy {
		data.Refresh = busyRefreshSeconds
	}
	c.HTML(http.StatusOK, "chat.html", data)
}

func (h *Handler) handleSend(c *gin.Context) {
	_, s, ok := h.chatScreen(c)
	if !ok {
		return
	}
	if s.dispatcher.Send(c.PostForm("text")) && h.syncDispatch {
		s.dispatcher.Wait()
	}
	c.Redirect(http.StatusSeeOther, "/chat/"+s.id)
}

type transcriptMessage struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
}

type transcriptResponse struct {
	Busy     bool                `json:"busy"`
	Version  uint64              `json:"version"`
	Messages []transcriptMessage `json:"messages"`
}

func (h *Handler) handleTranscript(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	s := b.chat(c.Param("id"), h.now())
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	h.revalidate(c.Request.Context(), b)

	switch decision := s.guard.Decide(domain.ScreenChat); decision.Action {
	case domain.ActionRedirect:
		b.closeChat(s.id)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "location": decision.Location})
		return
	case domain.ActionSuspend:
		c.Status(http.StatusNoContent)
		return
	}

	conv := s.dispatcher.Conversation()
	msgs := conv.Messages()
	out := transcriptResponse{
		Busy:     s.dispatcher.Busy(),
		Version:  conv.Version(),
		Messages: make([]transcriptMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, transcriptMessage{
			ID:     m.ID,
			Sender: string(m.Sender),
			Text:   m.Text,
			HTML:   string(renderMarkdown(m.Text)),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleClose(c *gin.Context) {
	b, ok := h.browser(c)
	if !ok {
		return
	}
	b.closeChat(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// apply writes the response for a non-render decision and reports whether
// the caller should go on rendering.
func (h *Handler) apply(c *gin.Context, d domain.Decision) bool {
	switch d.Action {
	case domain.ActionRender:
		return true
	case domain.ActionRedirect:
		c.Redirect(http.StatusSeeOther, d.Location)
	default:
		c.HTML(http.StatusOK, "blank.html", pageData{Brand: h.currentBranding(), Refresh: busyRefreshSeconds})
	}
	return false
}

// revalidate asks the provider for the current session so that refreshes and
// expiries reach every subscribed guard before the access decision.
func (h *Handler) revalidate(ctx context.Context, b *browser) {
	if _, err := b.auth.GetSession(ctx); err != nil {
		h.logger.Warn("session revalidation failed", "err", err)
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	c.String(http.StatusInternalServerError, "internal server error")
}

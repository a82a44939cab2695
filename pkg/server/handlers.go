package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/command"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/moex"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fail maps err to a status code. Storage and other unexpected failures
// never leak detail to the client.
func (s *Server) fail(c *gin.Context, operation string, err error) {
	var formatErr *command.FormatError
	switch {
	case errors.As(err, &formatErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": formatErr.Hint})
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrPersonNotFound), errors.Is(err, store.ErrPersonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
	case errors.Is(err, store.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	default:
		s.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("error_type", moex.ClassifyError(err)),
			zap.Error(err))
		s.app.Metrics().RecordError(c.Request.Context(), operation, moex.ClassifyError(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "MoeX is alive"})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.app.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": moex.Version})
}

type createPersonRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Handle     string `json:"handle"`
	Tags       string `json:"tags"`
	Persona    string `json:"persona"`
	Secret     string `json:"secret"`
	SecretWord string `json:"secret_word"`
}

func (s *Server) handleCreatePerson(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = req.SecretWord
	}
	if strings.TrimSpace(req.Name) == "" || secret == "" {
		badRequest(c, "name and secret are required")
		return
	}

	p, err := s.app.Identity().Register(c.Request.Context(), identity.Registration{
		Name:    req.Name,
		Email:   req.Email,
		Handle:  req.Handle,
		Tags:    req.Tags,
		Persona: req.Persona,
		Secret:  secret,
	})
	if err != nil {
		s.fail(c, "register", err)
		return
	}
	s.app.RefreshCounts(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"ok": true, "person_id": p.ID})
}

func (s *Server) handleDisablePerson(c *gin.Context) {
	if err := s.app.Identity().Disable(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, "disable", err)
		return
	}
	s.app.RefreshCounts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type claimRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Handle     string `json:"handle"`
}

func (s *Server) handleClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	res, err := s.app.Identity().Claim(c.Request.Context(), identity.ClaimQuery{
		Identifier: req.Identifier,
		Name:       req.Name,
		Email:      req.Email,
		Handle:     req.Handle,
	})
	if err != nil {
		s.fail(c, "claim", err)
		return
	}

	body := gin.H{"status": res.Status, "needs_secret": res.NeedsSecret}
	if res.PersonID != "" {
		body["person_id"] = res.PersonID
	}
	if res.Prompt != "" {
		body["prompt"] = res.Prompt
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	c.JSON(http.StatusOK, body)
}

type verifyRequest struct {
	PersonID   string `json:"person_id"`
	Secret     string `json:"secret"`
	SecretWord string `json:"secret_word"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = req.SecretWord
	}

	grant, err := s.app.Identity().Verify(c.Request.Context(), req.PersonID, secret)
	if errors.Is(err, identity.ErrSecretMismatch) {
		c.JSON(http.StatusOK, gin.H{"verified": false, "message": identity.MessageMismatch})
		return
	}
	if err != nil {
		s.fail(c, "verify", err)
		return
	}

	cfg := s.app.Config()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, grant.Token, int(cfg.TrustDuration().Seconds()), "/", "", cfg.Server.CookieSecure, true)

	c.JSON(http.StatusOK, gin.H{
		"verified":      true,
		"trusted_until": grant.TrustedUntil.UTC().Format(time.RFC3339),
		"person_id":     grant.PersonID,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	caller, err := s.caller(c)
	if err != nil {
		s.fail(c, "me", err)
		return
	}
	if caller.Anonymous() {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	p := caller.Person
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"person": gin.H{
			"id":    p.ID,
			"name":  p.Name,
			"email": p.Email,
			"tags":  p.Tags,
		},
		"trusted_until": caller.Session.TrustedUntil.UTC().Format(time.RFC3339),
	})
}

type chatRequest struct {
	Message  string `json:"message"`
	External bool   `json:"external"`
	Overdue  bool   `json:"overdue"`
	Repeat   bool   `json:"repeat"`
	Tag      string `json:"tag"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "message is required")
		return
	}

	resp, err := s.app.Chat().Handle(c.Request.Context(), chat.Request{
		Token:   sessionToken(c),
		Message: req.Message,
		Meta: tone.Meta{
			External: req.External,
			Overdue:  req.Overdue,
			Repeat:   req.Repeat,
			Tag:      req.Tag,
		},
	})
	if err != nil {
		s.fail(c, "chat", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type teachRequest struct {
	Line  string `json:"line"`
	Level string `json:"level"`
	Tag   string `json:"tag"`
}

func (s *Server) handleTeach(c *gin.Context) {
	var req teachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	h, err := s.app.Chat().Teach(c.Request.Context(), callerFrom(c), command.Teach{
		Level: req.Level,
		Tag:   req.Tag,
		Line:  req.Line,
	})
	if err != nil {
		s.fail(c, "teach", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"saved": gin.H{"line": h.Line, "level": h.Level, "tag": h.Tag},
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds 5MB"})
			return
		}
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}

	title := filepath.Base(fh.Filename)
	res, err := s.app.Chat().Upload(c.Request.Context(), callerFrom(c), title, strings.ToValidUTF8(string(data), ""))
	if err != nil {
		s.fail(c, "upload", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"title":     res.Title,
		"chunks":    res.Chunks,
		"duplicate": res.Duplicate,
	})
}

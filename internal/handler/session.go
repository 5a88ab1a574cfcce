package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"clipsync-server/internal/clip"
	"clipsync-server/internal/token"
)

type SessionHandler struct {
	Registry *clip.Registry
	Signer   *token.Signer
}

func statusForKind(kind clip.ErrorKind) int {
	switch kind {
	case clip.KindNotFound:
		return http.StatusNotFound
	case clip.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case clip.KindInvalidInput:
		return http.StatusBadRequest
	case clip.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func rejectWith(c *gin.Context, err error) {
	kind := clip.KindOf(err)
	c.JSON(statusForKind(kind), gin.H{"kind": kind, "error": err.Error()})
}

// Create allocates a fresh session. Unauthenticated by design; the
// rate limiter on the route is the only brake.
func (h *SessionHandler) Create(c *gin.Context) {
	sess := h.Registry.Create()
	log.Info().Str("session", sess.ID()).Msg("session created")
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID(),
		"createdAt": sess.CreatedAt(),
		"expiresAt": sess.ExpiresAt(),
	})
}

// Info lets the join page probe liveness and render a countdown from
// the server-communicated expiresAt.
func (h *SessionHandler) Info(c *gin.Context) {
	sess, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"kind": clip.KindNotFound, "error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// UploadFile is the browser-friendly submit path: a multipart upload
// that funnels into the same Session.SubmitFile as the websocket
// command and broadcasts the accepted item to every member.
func (h *SessionHandler) UploadFile(c *gin.Context) {
	sess, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"kind": clip.KindNotFound, "error": "Session not found"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": clip.KindInvalidInput, "error": "Missing file field"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"kind": clip.KindInvalidInput, "error": "Unreadable file"})
		return
	}
	defer f.Close()

	item, err := sess.SubmitFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f, c.PostForm("ref"))
	if err != nil {
		rejectWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// Download streams a staged blob. The token is minted at item
// acceptance, scoped to exactly this session and item, and expires with
// the session, so references can never be replayed after teardown.
func (h *SessionHandler) Download(c *gin.Context) {
	sessionID := c.Param("id")
	itemID := c.Param("itemID")

	sess, ok := h.Registry.Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"kind": clip.KindNotFound, "error": "Session not found"})
		return
	}
	if err := h.Signer.Verify(c.Query("token"), sessionID, itemID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"kind": clip.KindNotFound, "error": "File not found"})
		return
	}

	item, data, err := sess.FileBytes(itemID)
	if err != nil {
		rejectWith(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+item.Name+`"`)
	mimeType := item.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Data(http.StatusOK, mimeType, data)
}

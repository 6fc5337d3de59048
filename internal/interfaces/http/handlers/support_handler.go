package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botforge/botforge/internal/application/usecase"
)

// SupportHandler serves the panel's support assistant chat.
type SupportHandler struct {
	support *usecase.SupportChatUseCase
}

// NewSupportHandler creates the support chat handler.
func NewSupportHandler(support *usecase.SupportChatUseCase) *SupportHandler {
	return &SupportHandler{support: support}
}

type supportChatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

// Chat answers one operator question, either as a blocking JSON reply
// or as an SSE stream of content chunks terminated by [DONE].
// POST /api/support/chat
func (h *SupportHandler) Chat(c *gin.Context) {
	var req supportChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		badRequest(c, "Введите сообщение")
		return
	}

	if req.Stream {
		h.stream(c, message)
		return
	}

	reply, err := h.support.Ask(c.Request.Context(), message)
	if err != nil && reply == "" {
		// Configuration problems have no reply text to show.
		respondError(c, err)
		return
	}
	// Provider failures still carry a localized reply the panel can
	// render in the chat window.
	c.JSON(http.StatusOK, gin.H{"success": err == nil, "reply": reply})
}

func (h *SupportHandler) stream(c *gin.Context, message string) {
	ch, err := h.support.Stream(c.Request.Context(), message)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for chunk := range ch {
		if chunk.Content == "" {
			continue
		}
		data, _ := json.Marshal(gin.H{"content": chunk.Content})
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		flush()
	}

	io.WriteString(c.Writer, "data: [DONE]\n\n")
	flush()
}

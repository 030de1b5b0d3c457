package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"xinicimail/backend/internal/edge"
	"xinicimail/backend/internal/service"
)

// 投递触发器携带信封的请求头
const (
	HeaderEnvelopeTo   = "X-Envelope-To"
	HeaderEnvelopeFrom = "X-Envelope-From"
	HeaderMailSubject  = "X-Mail-Subject"
)

// Handler 聚合查询接口与投递入口的处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	inbound   *edge.Handler
}

// listMessages GET /api/messages?login=&domain=
func (h *Handler) listMessages(c *gin.Context) {
	login, domainName := c.Query("login"), c.Query("domain")
	if login == "" || domainName == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: MsgMissingIdentity})
		return
	}

	messages, err := h.mailboxes.List(c.Request.Context(), login, domainName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// readMessage GET /api/read?id=&login=&domain=
func (h *Handler) readMessage(c *gin.Context) {
	login, domainName := c.Query("login"), c.Query("domain")
	if login == "" || domainName == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: MsgMissingIdentity})
		return
	}
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: MsgMissingMessageID})
		return
	}

	msg, err := h.mailboxes.Read(c.Request.Context(), login, domainName, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// status GET /api/status
func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.mailboxes.Status(c.Request.Context()))
}

// receiveInbound POST /api/inbound，请求体是原始邮件，信封在请求头中
func (h *Handler) receiveInbound(c *gin.Context) {
	msg, err := h.inbound.Deliver(c.Request.Context(), edge.InboundEvent{
		To:         c.GetHeader(HeaderEnvelopeTo),
		From:       c.GetHeader(HeaderEnvelopeFrom),
		Subject:    c.GetHeader(HeaderMailSubject),
		Raw:        c.Request.Body,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID})
}

// notFound 未匹配的路由一律返回 JSON
func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Error: "API route not found: " + c.Request.URL.Path})
}

// Package discordremote is the authenticated façade over the Discord v10
// API that RemoteObjectClient in spec.md §4.2 describes: create-message-
// with-attachment, delete-message, fetch-attachment-bytes with URL-expiry
// recovery, and fetch-message.
package discordremote

import (
	"bytes"
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/riverrun/discordftpd/internal/restclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// sentinelBody is the literal text Discord's CDN returns in place of an
// expired attachment, which triggers re-resolution via the owning message.
const sentinelBody = "This content is no longer available."

// uploadPace is the minimum spacing between successive uploads, enforced
// by the client's rate limiter, which upload waits on before each post.
const uploadPace = 500 * time.Millisecond

// Client talks to one configured Discord channel on behalf of one bot
// credential.
type Client struct {
	session   *discordgo.Session
	channelID string
	cdn       *restclient.Client
	limiter   *rate.Limiter
	log       *logrus.Entry
}

// New constructs a Client. token is the bare bot token (without the "Bot "
// prefix, which discordgo adds); channelID is the decimal channel ID
// chunks and metadata are uploaded to.
func New(token, channelID string, log *logrus.Entry) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		session:   session,
		channelID: channelID,
		cdn:       restclient.NewClient(nil),
		limiter:   rate.NewLimiter(rate.Every(uploadPace), 1),
		log:       log,
	}, nil
}

// VerifyChannel confirms the configured channel is reachable with the
// configured credential, failing fast at startup rather than on the first
// upload.
func (c *Client) VerifyChannel() error {
	_, err := c.session.Channel(c.channelID)
	if err != nil {
		return errors.Wrap(err, "fetch configured channel")
	}
	return nil
}

// Upload posts payload as a file attachment with text part content and
// returns the resulting message ID and the first attachment's URL. It sets
// no reply-to reference; see UploadReply for that.
func (c *Client) Upload(ctx context.Context, content string, payload []byte) (messageID, url string, err error) {
	return c.upload(ctx, content, payload, "")
}

// UploadReply is Upload with a message_reference pointing at replyTo.
func (c *Client) UploadReply(ctx context.Context, content string, payload []byte, replyTo string) (messageID, url string, err error) {
	return c.upload(ctx, content, payload, replyTo)
}

func (c *Client) upload(ctx context.Context, content string, payload []byte, replyTo string) (string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", errors.Wrap(err, "wait for upload pacing")
	}

	send := &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:   "file",
			Reader: bytes.NewReader(payload),
		}},
	}
	if replyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: c.channelID}
	}

	message, err := c.session.ChannelMessageSendComplex(c.channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", "", errors.Wrap(err, "post attachment message")
	}
	if len(message.Attachments) == 0 {
		return "", "", errors.New("message posted with no attachments")
	}

	c.log.WithField("messageID", message.ID).WithField("bytes", len(payload)).Debug("uploaded chunk")
	return message.ID, message.Attachments[0].URL, nil
}

// Delete removes messageID from the configured channel.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	err := c.session.ChannelMessageDelete(c.channelID, messageID, discordgo.WithContext(ctx))
	if err != nil && !isAlreadyGone(err) {
		return errors.Wrapf(err, "delete message %s", messageID)
	}
	return nil
}

// FetchMessage re-resolves a message by ID, used internally by
// FetchAttachment to recover an expired attachment URL.
func (c *Client) FetchMessage(ctx context.Context, messageID string) (*discordgo.Message, error) {
	message, err := c.session.ChannelMessage(c.channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "fetch message %s", messageID)
	}
	return message, nil
}

// FetchAttachment downloads url. If the response body is the sentinel
// expiry text, it re-resolves messageID and downloads the refreshed URL
// instead.
func (c *Client) FetchAttachment(ctx context.Context, url, messageID string) ([]byte, error) {
	body, _, err := c.cdn.Call(ctx, &restclient.Opts{Method: "GET", RootURL: url})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch attachment at %s", url)
	}
	if string(body) != sentinelBody {
		return body, nil
	}

	c.log.WithField("messageID", messageID).Debug("attachment url expired, re-resolving")
	message, err := c.FetchMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if len(message.Attachments) == 0 {
		return nil, errors.Errorf("message %s has no attachments to refresh from", messageID)
	}

	body, _, err = c.cdn.Call(ctx, &restclient.Opts{Method: "GET", RootURL: message.Attachments[0].URL})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch refreshed attachment for message %s", messageID)
	}
	return body, nil
}

// isAlreadyGone reports whether err looks like Discord's "unknown message"
// response, which Delete tolerates as success since the desired end state
// (the message is gone) already holds.
func isAlreadyGone(err error) bool {
	rerr, ok := err.(*discordgo.RESTError)
	if !ok {
		return false
	}
	return rerr.Message != nil && rerr.Message.Code == discordgo.ErrCodeUnknownMessage
}

package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-mastodon"
	"go.uber.org/zap"

	"github.com/watzon/cubeglobe-bot/bot/config"
)

const requestTimeout = 2 * time.Minute

// MastodonClient handles interactions with a Mastodon-compatible instance
type MastodonClient struct {
	client *mastodon.Client
	logger *zap.Logger
}

// NewMastodonClient creates a client authenticated with the operator's
// access token. No network request is made until the first call.
func NewMastodonClient(creds config.Credentials, logger *zap.Logger) *MastodonClient {
	client := mastodon.NewClient(&mastodon.Config{
		Server:       creds.Base,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AccessToken:  creds.Token,
	})
	client.Timeout = requestTimeout

	return &MastodonClient{
		client: client,
		logger: logger,
	}
}

// Platform implements Poster.
func (m *MastodonClient) Platform() string {
	return "mastodon"
}

// ValidateCredentials fetches the account the token belongs to.
func (m *MastodonClient) ValidateCredentials(ctx context.Context) error {
	account, err := m.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify credentials: %w", err)
	}
	m.logger.Debug("Credentials verified", zap.String("account", account.Acct))
	return nil
}

// Post uploads the image with its description, then posts a status with the
// attachment.
func (m *MastodonClient) Post(ctx context.Context, content PostContent) (*PostResult, error) {
	var file io.Reader = bytes.NewReader(content.Image)
	if content.Path != "" {
		// go-mastodon only sends a file name for *os.File readers
		f, err := os.Open(content.Path)
		if err != nil {
			return nil, &PostError{Stage: StageUpload, Err: err}
		}
		defer f.Close()
		file = f
	}

	attachment, err := m.client.UploadMediaFromMedia(ctx, &mastodon.Media{
		File:        file,
		Description: content.Description,
	})
	if err != nil {
		return nil, &PostError{Stage: StageUpload, Err: err}
	}
	m.logger.Debug("Media uploaded",
		zap.String("media_id", string(attachment.ID)),
		zap.String("path", content.Path),
		zap.Int("bytes", len(content.Image)))

	status, err := m.client.PostStatus(ctx, &mastodon.Toot{
		Status:      content.Text,
		MediaIDs:    []mastodon.ID{attachment.ID},
		Visibility:  content.Visibility,
		Sensitive:   content.Sensitive,
		SpoilerText: content.SpoilerText,
	})
	if err != nil {
		return nil, &PostError{Stage: StageStatus, Err: err}
	}

	return &PostResult{
		ID:  string(status.ID),
		URI: status.URI,
		URL: status.URL,
	}, nil
}
